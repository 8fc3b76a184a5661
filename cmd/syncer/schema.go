package main

import "github.com/indexflow-go/internal/syncer/registry"

// buildSchema declares the index mappings for this deployment: which tables
// feed which indices and how records depend on each other. Articles embed
// their author and tags, so changes to either fan out to the owning articles.
func buildSchema() *registry.Schema {
	return registry.NewSchema(
		&registry.IndexDef{
			Name:  "articles",
			Table: "articles",
			Mapping: `{
				"mappings": {
					"properties": {
						"id": {"type": "keyword"},
						"title": {"type": "text"},
						"body": {"type": "text"},
						"author_id": {"type": "keyword"},
						"published_at": {"type": "date"}
					}
				}
			}`,
			Relations: []registry.RelationFunc{
				registry.BelongsTo("authors", "articles", "author_id", "id"),
				registry.ManyToMany("tags", "article_tags", "article_id", "tag_id"),
			},
		},
		&registry.IndexDef{
			Name:  "authors",
			Table: "authors",
			Mapping: `{
				"mappings": {
					"properties": {
						"id": {"type": "keyword"},
						"name": {"type": "text"},
						"email": {"type": "keyword"}
					}
				}
			}`,
			Relations: []registry.RelationFunc{
				registry.HasMany("articles", "articles", "author_id", "id"),
			},
		},
		&registry.IndexDef{
			Name:    "tags",
			Table:   "tags",
			Mapping: registry.DefaultMapping,
			Relations: []registry.RelationFunc{
				registry.ManyToMany("articles", "article_tags", "tag_id", "article_id"),
			},
		},
	)
}
