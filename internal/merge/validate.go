package merge

import "fmt"

// FieldRole binds a configuration key to the live field name it must resolve
// to. Roles are checked once against view structure so a typo in the
// configuration surfaces as one diagnostic naming the offending key instead
// of a failure deep in the pipeline.
type FieldRole struct {
	Key   string // configuration key, e.g. "source.template_link_field"
	Field string // configured field name
}

// ConfigMismatchError reports a configured field name that does not exist in
// the live view schema.
type ConfigMismatchError struct {
	Key    string
	Field  string
	ViewID int
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("couldn't find field %q in view %d; this value is set as %s", e.Field, e.ViewID, e.Key)
}

// ValidateRoles checks every role against the live schema of a view,
// returning one error per missing field.
func ValidateRoles(roles []FieldRole, viewID int, structure []FieldSchema) []error {
	known := make(map[string]bool, len(structure))
	for _, fs := range structure {
		known[fs.Name] = true
	}
	var errs []error
	for _, role := range roles {
		if !known[role.Field] {
			errs = append(errs, &ConfigMismatchError{Key: role.Key, Field: role.Field, ViewID: viewID})
		}
	}
	return errs
}
