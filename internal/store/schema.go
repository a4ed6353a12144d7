package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS site (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	domain           TEXT NOT NULL UNIQUE,
	robots_content   TEXT NOT NULL DEFAULT '',
	sitemap_content  TEXT NOT NULL DEFAULT '',
	last_crawled_at  DATETIME
);

CREATE TABLE IF NOT EXISTS page (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id           INTEGER REFERENCES site(id),
	url               TEXT NOT NULL UNIQUE,
	page_type_code    TEXT NOT NULL,
	html_content      TEXT,
	hash_content      TEXT,
	http_status_code  INTEGER,
	accessed_time     DATETIME,
	added_at_time     DATETIME NOT NULL,
	active_in_crawler BOOLEAN,
	leased_at         DATETIME
);

CREATE INDEX IF NOT EXISTS idx_page_frontier
	ON page(page_type_code, leased_at, added_at_time)
	WHERE page_type_code = 'FRONTIER';

CREATE TABLE IF NOT EXISTS page_data (
	page_id        INTEGER NOT NULL REFERENCES page(id),
	data_type_code TEXT NOT NULL,
	data           BLOB NOT NULL,
	data_size      INTEGER NOT NULL,
	PRIMARY KEY (page_id, data_type_code)
);

CREATE TABLE IF NOT EXISTS image_data (
	page_id       INTEGER NOT NULL REFERENCES page(id),
	filename      TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	data          BLOB NOT NULL,
	data_size     INTEGER NOT NULL,
	accessed_time DATETIME NOT NULL,
	PRIMARY KEY (page_id, filename)
);

CREATE TABLE IF NOT EXISTS link (
	from_page INTEGER NOT NULL REFERENCES page(id),
	to_page   INTEGER NOT NULL REFERENCES page(id),
	PRIMARY KEY (from_page, to_page)
);

CREATE TABLE IF NOT EXISTS content_hash (
	page_id     INTEGER PRIMARY KEY REFERENCES page(id),
	hash        BLOB NOT NULL,
	hash_length INTEGER NOT NULL
);
`
