package rule

// Context carries everything a single rule evaluation can see: the record
// under evaluation plus the entity, tenant, user, and rule metadata that
// templates may reference.
type Context struct {
	Record *Record
	Entity *Entity
	Tenant *Tenant
	User   *User
	Rule   *Rule
}

// Map renders the context as the nested lookup structure templates resolve
// against. Absent members are simply omitted so their placeholders stay
// unresolved.
func (c *Context) Map() map[string]any {
	m := make(map[string]any, 5)

	if c.Record != nil {
		rec := map[string]any{
			"id":         c.Record.ID,
			"fields":     c.Record.Fields,
			"created_at": c.Record.CreatedAt,
		}
		if c.Record.UpdatedAt != nil {
			rec["updated_at"] = *c.Record.UpdatedAt
		}
		m["record"] = rec
	}
	if c.Entity != nil {
		// Triggers may carry only the entity id. Leave name and slug out
		// in that case so their placeholders stay unresolved instead of
		// rendering as empty strings.
		ent := map[string]any{"id": c.Entity.ID}
		if c.Entity.Name != "" {
			ent["name"] = c.Entity.Name
		}
		if c.Entity.Slug != "" {
			ent["slug"] = c.Entity.Slug
		}
		m["entity"] = ent
	}
	if c.Tenant != nil {
		m["tenant"] = map[string]any{
			"id":   c.Tenant.ID,
			"name": c.Tenant.Name,
		}
	}
	if c.User != nil {
		m["user"] = map[string]any{
			"id":    c.User.ID,
			"name":  c.User.Name,
			"email": c.User.Email,
		}
	}
	if c.Rule != nil {
		m["rule"] = map[string]any{
			"id":   c.Rule.ID,
			"name": c.Rule.Name,
		}
	}

	return m
}
