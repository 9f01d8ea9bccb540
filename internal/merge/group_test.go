package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linkedRecord(id int64, templateID int64) Record {
	rec := Record{"id": NumberValue(float64(id))}
	if templateID != 0 {
		rec["Template"] = StringValue("Some Template")
		rec["Template(id)"] = NumberValue(float64(templateID))
	}
	return rec
}

func TestGroupByTemplate(t *testing.T) {
	records := []Record{
		linkedRecord(1, 20),
		linkedRecord(2, 10),
		linkedRecord(3, 0), // no template link
		linkedRecord(4, 20),
		linkedRecord(5, 10),
	}

	groups := GroupByTemplate(records, "Template")
	require.Len(t, groups, 2)

	// Group order follows first appearance of each template key.
	assert.Equal(t, int64(20), groups[0].TemplateID)
	assert.Equal(t, int64(10), groups[1].TemplateID)

	// Records keep their input order within a group.
	assert.Equal(t, []int64{1, 4}, recordIDsOf(groups[0].Records))
	assert.Equal(t, []int64{2, 5}, recordIDsOf(groups[1].Records))
}

func TestGroupByTemplatePartition(t *testing.T) {
	records := []Record{
		linkedRecord(1, 5),
		linkedRecord(2, 0),
		linkedRecord(3, 6),
		linkedRecord(4, 5),
	}

	groups := GroupByTemplate(records, "Template")

	var grouped []int64
	for _, g := range groups {
		grouped = append(grouped, recordIDsOf(g.Records)...)
	}
	// Exactly the linked records, each exactly once.
	assert.ElementsMatch(t, []int64{1, 3, 4}, grouped)

	// Two runs over the same input agree.
	again := GroupByTemplate(records, "Template")
	assert.Equal(t, groups, again)
}

func TestGroupByTemplateEmpty(t *testing.T) {
	assert.Empty(t, GroupByTemplate(nil, "Template"))
	assert.Empty(t, GroupByTemplate([]Record{linkedRecord(1, 0)}, "Template"))
}

func recordIDsOf(records []Record) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID()
	}
	return ids
}
