package merge

// Group is the ordered set of records targeting one template.
type Group struct {
	TemplateID int64
	Records    []Record
}

// GroupByTemplate partitions records by the template each one links to,
// reading the identifier form of linkField. Records with no template link are
// skipped; they belong to no group. Group order follows the first appearance
// of each template key and records keep their input order within a group, so
// downstream file naming and note text are deterministic.
func GroupByTemplate(records []Record, linkField string) []Group {
	var groups []Group
	index := make(map[int64]int)
	for _, rec := range records {
		id, ok := rec.TemplateID(linkField)
		if !ok {
			continue
		}
		i, seen := index[id]
		if !seen {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group{TemplateID: id})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}
	return groups
}
