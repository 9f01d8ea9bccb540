package config

import "docxmerge/internal/merge"

// SourceRoles lists the field roles the source view schema must satisfy.
// Optional roles with no configured name are omitted.
func (c *Config) SourceRoles() []merge.FieldRole {
	roles := []merge.FieldRole{
		{Key: "source.template_link_field", Field: c.Source.TemplateLinkField},
	}
	if c.Source.RecordIDField != "" {
		roles = append(roles, merge.FieldRole{Key: "source.record_id_field", Field: c.Source.RecordIDField})
	}
	for _, f := range c.Source.ImageFields {
		roles = append(roles, merge.FieldRole{Key: "source.image_fields", Field: f})
	}
	return roles
}

// TemplateRoles lists the field roles the template view schema must satisfy.
func (c *Config) TemplateRoles() []merge.FieldRole {
	return []merge.FieldRole{
		{Key: "templates.document_field", Field: c.Templates.DocumentField},
	}
}

// DestinationRoles lists the field roles the destination view schema must
// satisfy.
func (c *Config) DestinationRoles() []merge.FieldRole {
	roles := []merge.FieldRole{
		{Key: "destination.document_field", Field: c.Destination.DocumentField},
	}
	if c.Destination.DetailsField != "" {
		roles = append(roles, merge.FieldRole{Key: "destination.details_field", Field: c.Destination.DetailsField})
	}
	if c.Destination.TemplateLinkField != "" {
		roles = append(roles, merge.FieldRole{Key: "destination.template_link_field", Field: c.Destination.TemplateLinkField})
	}
	if c.Destination.MergeUserField != "" {
		roles = append(roles, merge.FieldRole{Key: "destination.merge_user_field", Field: c.Destination.MergeUserField})
	}
	return roles
}
