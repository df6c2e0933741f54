package migrate

// Schema returns the migration source for the named dialect
// ("postgres" or "sqlite"). Both sources define the same logical layout;
// they differ where the engines do: serial vs AUTOINCREMENT ids, jsonb vs
// serialized text for field payloads, tsvector/GIN vs an FTS virtual
// table for the free-text indexes.
//
// Constraint names matter: the adapters classify unique violations by the
// identifiers declared in the adapter package, so the DDL here must name
// its constraints accordingly (postgres) or keep the violating column
// stable (sqlite reports "table.column" instead of constraint names).
func Schema(dialect string) Source {
	var versions []Batch
	if dialect == "postgres" {
		versions = postgresVersions
	} else {
		versions = sqliteVersions
	}
	return func(version int) (Batch, bool) {
		if version < 1 || version > len(versions) {
			return nil, false
		}
		return versions[version-1], true
	}
}

var postgresVersions = []Batch{
	// 1: entities and their append-only version rows.
	{
		`CREATE TABLE entities (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			auth_key TEXT NOT NULL,
			resolved_auth_key TEXT NOT NULL,
			status TEXT NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			ever_published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			update_seq BIGINT NOT NULL,
			latest_version_id BIGINT,
			published_version_id BIGINT,
			CONSTRAINT entities_uuid_key UNIQUE (uuid),
			CONSTRAINT entities_name_key UNIQUE (name)
		)`,
		`CREATE TABLE entity_versions (
			id BIGSERIAL PRIMARY KEY,
			entities_id BIGINT NOT NULL REFERENCES entities(id),
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			created_by TEXT NOT NULL,
			fields JSONB NOT NULL,
			CONSTRAINT entity_versions_entity_version_key UNIQUE (entities_id, version)
		)`,
		`CREATE INDEX entities_resolved_auth_key_idx ON entities (resolved_auth_key)`,
	},
	// 2: derived reference-edge projections, one index per view.
	{
		`CREATE TABLE entity_reference_edges_latest (
			from_entities_id BIGINT NOT NULL REFERENCES entities(id),
			to_entities_id BIGINT NOT NULL REFERENCES entities(id),
			PRIMARY KEY (from_entities_id, to_entities_id)
		)`,
		`CREATE TABLE entity_reference_edges_published (
			from_entities_id BIGINT NOT NULL REFERENCES entities(id),
			to_entities_id BIGINT NOT NULL REFERENCES entities(id),
			PRIMARY KEY (from_entities_id, to_entities_id)
		)`,
		`CREATE INDEX entity_reference_edges_latest_to_idx
			ON entity_reference_edges_latest (to_entities_id)`,
		`CREATE INDEX entity_reference_edges_published_to_idx
			ON entity_reference_edges_published (to_entities_id)`,
	},
	// 3: derived location projection, keyed by (entity, version).
	{
		`CREATE TABLE entity_location_index (
			entities_id BIGINT NOT NULL REFERENCES entities(id),
			version_id BIGINT NOT NULL REFERENCES entity_versions(id),
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX entity_location_index_version_idx
			ON entity_location_index (version_id)`,
	},
	// 4: append-only publishing audit trail.
	{
		`CREATE TABLE entity_publishing_events (
			id BIGSERIAL PRIMARY KEY,
			entities_id BIGINT NOT NULL REFERENCES entities(id),
			version_id BIGINT REFERENCES entity_versions(id),
			actor TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			kind TEXT NOT NULL
		)`,
		`CREATE INDEX entity_publishing_events_entity_idx
			ON entity_publishing_events (entities_id)`,
	},
	// 5: cooperative advisory locks.
	{
		`CREATE TABLE advisory_locks (
			name TEXT NOT NULL,
			handle TEXT NOT NULL,
			acquired_at TIMESTAMPTZ NOT NULL,
			renewed_at TIMESTAMPTZ NOT NULL,
			lease_ms BIGINT NOT NULL,
			CONSTRAINT advisory_locks_name_key UNIQUE (name)
		)`,
	},
	// 6: specification snapshots, newest row is current.
	{
		`CREATE TABLE schema_versions (
			id BIGSERIAL PRIMARY KEY,
			specification TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	},
	// 7: free-text indexes, one per view, GIN over a tsvector expression.
	{
		`CREATE TABLE entity_search_latest (
			entities_id BIGINT PRIMARY KEY REFERENCES entities(id),
			body TEXT NOT NULL
		)`,
		`CREATE TABLE entity_search_published (
			entities_id BIGINT PRIMARY KEY REFERENCES entities(id),
			body TEXT NOT NULL
		)`,
		`CREATE INDEX entity_search_latest_tsv_idx ON entity_search_latest
			USING GIN (to_tsvector('simple', body))`,
		`CREATE INDEX entity_search_published_tsv_idx ON entity_search_published
			USING GIN (to_tsvector('simple', body))`,
	},
	// 8: global update sequence, bumped inside mutating transactions.
	{
		`CREATE TABLE entity_update_seq (value BIGINT NOT NULL)`,
		`INSERT INTO entity_update_seq (value) VALUES (0)`,
	},
}

var sqliteVersions = []Batch{
	// 1: entities and their append-only version rows.
	{
		`CREATE TABLE entities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			auth_key TEXT NOT NULL,
			resolved_auth_key TEXT NOT NULL,
			status TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			ever_published INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			update_seq INTEGER NOT NULL,
			latest_version_id INTEGER,
			published_version_id INTEGER,
			CONSTRAINT entities_uuid_key UNIQUE (uuid),
			CONSTRAINT entities_name_key UNIQUE (name)
		)`,
		`CREATE TABLE entity_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entities_id INTEGER NOT NULL REFERENCES entities(id),
			version INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			created_by TEXT NOT NULL,
			fields TEXT NOT NULL,
			CONSTRAINT entity_versions_entity_version_key UNIQUE (entities_id, version)
		)`,
		`CREATE INDEX entities_resolved_auth_key_idx ON entities (resolved_auth_key)`,
	},
	// 2: derived reference-edge projections, one index per view.
	{
		`CREATE TABLE entity_reference_edges_latest (
			from_entities_id INTEGER NOT NULL REFERENCES entities(id),
			to_entities_id INTEGER NOT NULL REFERENCES entities(id),
			PRIMARY KEY (from_entities_id, to_entities_id)
		)`,
		`CREATE TABLE entity_reference_edges_published (
			from_entities_id INTEGER NOT NULL REFERENCES entities(id),
			to_entities_id INTEGER NOT NULL REFERENCES entities(id),
			PRIMARY KEY (from_entities_id, to_entities_id)
		)`,
		`CREATE INDEX entity_reference_edges_latest_to_idx
			ON entity_reference_edges_latest (to_entities_id)`,
		`CREATE INDEX entity_reference_edges_published_to_idx
			ON entity_reference_edges_published (to_entities_id)`,
	},
	// 3: derived location projection, keyed by (entity, version).
	{
		`CREATE TABLE entity_location_index (
			entities_id INTEGER NOT NULL REFERENCES entities(id),
			version_id INTEGER NOT NULL REFERENCES entity_versions(id),
			lat REAL NOT NULL,
			lng REAL NOT NULL
		)`,
		`CREATE INDEX entity_location_index_version_idx
			ON entity_location_index (version_id)`,
	},
	// 4: append-only publishing audit trail.
	{
		`CREATE TABLE entity_publishing_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entities_id INTEGER NOT NULL REFERENCES entities(id),
			version_id INTEGER REFERENCES entity_versions(id),
			actor TEXT NOT NULL,
			at TIMESTAMP NOT NULL,
			kind TEXT NOT NULL
		)`,
		`CREATE INDEX entity_publishing_events_entity_idx
			ON entity_publishing_events (entities_id)`,
	},
	// 5: cooperative advisory locks.
	{
		`CREATE TABLE advisory_locks (
			name TEXT NOT NULL,
			handle TEXT NOT NULL,
			acquired_at TIMESTAMP NOT NULL,
			renewed_at TIMESTAMP NOT NULL,
			lease_ms INTEGER NOT NULL,
			CONSTRAINT advisory_locks_name_key UNIQUE (name)
		)`,
	},
	// 6: specification snapshots, newest row is current.
	{
		`CREATE TABLE schema_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			specification TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	},
	// 7: free-text indexes, FTS virtual tables whose rowid is entities.id.
	{
		`CREATE VIRTUAL TABLE entity_search_latest USING fts4(body)`,
		`CREATE VIRTUAL TABLE entity_search_published USING fts4(body)`,
	},
	// 8: global update sequence, bumped inside mutating transactions.
	{
		`CREATE TABLE entity_update_seq (value INTEGER NOT NULL)`,
		`INSERT INTO entity_update_seq (value) VALUES (0)`,
	},
}
