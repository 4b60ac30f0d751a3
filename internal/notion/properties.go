package notion

// Property value builders for page create/update payloads.

func Title(s string) map[string]any {
	return map[string]any{"title": []any{textRun(s)}}
}

func RichText(s string) map[string]any {
	return map[string]any{"rich_text": []any{textRun(s)}}
}

func Select(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}

func Date(start string) map[string]any {
	return map[string]any{"date": map[string]any{"start": start}}
}

func Number(f float64) map[string]any {
	return map[string]any{"number": f}
}

func Checkbox(b bool) map[string]any {
	return map[string]any{"checkbox": b}
}

func textRun(s string) map[string]any {
	return map[string]any{"text": map[string]any{"content": s}}
}

// Filter builders for database queries.

func Equals(property, kind string, value any) map[string]any {
	return map[string]any{"property": property, kind: map[string]any{"equals": value}}
}

func StartsWith(property, kind, prefix string) map[string]any {
	return map[string]any{"property": property, kind: map[string]any{"starts_with": prefix}}
}

func And(filters ...map[string]any) map[string]any {
	list := make([]any, 0, len(filters))
	for _, f := range filters {
		list = append(list, f)
	}
	return map[string]any{"and": list}
}

// schema helpers

type option struct {
	Name  string
	Color string
}

func selectSchema(opts ...option) map[string]any {
	list := make([]any, 0, len(opts))
	for _, o := range opts {
		list = append(list, map[string]any{"name": o.Name, "color": o.Color})
	}
	return map[string]any{"select": map[string]any{"options": list}}
}

func empty(kind string) map[string]any {
	return map[string]any{kind: map[string]any{}}
}
