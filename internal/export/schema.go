package export

// schema creates the tables and views when missing. Dates are stored as
// YYYY-MM-DD text and timestamps as UTC "YYYY-MM-DD HH:MM:SS" text so the
// SQLite date functions accept them.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS Filing (
  api_id TEXT PRIMARY KEY NOT NULL,
  country TEXT,
  filing_index TEXT,
  language TEXT,
  last_end_date TEXT,
  reporting_date TEXT,
  error_count INTEGER,
  inconsistency_count INTEGER,
  warning_count INTEGER,
  added_time TEXT,
  processed_time TEXT,
  entity_api_id TEXT,
  json_url TEXT,
  package_url TEXT,
  viewer_url TEXT,
  xhtml_url TEXT,
  package_sha256 TEXT,
  json_download_path TEXT,
  package_download_path TEXT,
  xhtml_download_path TEXT,
  query_time TEXT,
  request_url TEXT
) WITHOUT ROWID`,

	`CREATE TABLE IF NOT EXISTS Entity (
  api_id TEXT PRIMARY KEY NOT NULL,
  identifier TEXT,
  name TEXT,
  api_entity_filings_url TEXT,
  query_time TEXT,
  request_url TEXT
) WITHOUT ROWID`,

	`CREATE TABLE IF NOT EXISTS ValidationMessage (
  api_id TEXT PRIMARY KEY NOT NULL,
  filing_api_id TEXT,
  severity TEXT,
  code TEXT,
  text TEXT,
  calc_computed_sum REAL,
  calc_reported_sum REAL,
  calc_context_id TEXT,
  calc_line_item TEXT,
  calc_short_role TEXT,
  calc_unreported_items TEXT,
  duplicate_greater REAL,
  duplicate_lesser REAL,
  query_time TEXT,
  request_url TEXT
) WITHOUT ROWID`,

	viewEnclosure,
	viewFilingAge,
	viewNumericErrors,
}

// ViewEnclosure groups the language versions of one report: the filings
// of an entity sharing a reporting date.
const viewEnclosure = `CREATE VIEW IF NOT EXISTS ViewEnclosure AS
SELECT
  e.name AS entity_name,
  f.reporting_date,
  f.country,
  group_concat(f.language, ', ') AS languages,
  group_concat(f.api_id, ', ') AS filing_api_ids,
  avg(f.error_count) AS error_count,
  avg(f.inconsistency_count) AS inconsistency_count,
  avg(f.warning_count) AS warning_count,
  min(f.added_time) AS added_time,
  max(f.processed_time) AS processed_time,
  e.identifier,
  e.api_id AS entity_api_id
FROM Filing AS f
  JOIN Entity AS e ON e.api_id = f.entity_api_id
GROUP BY e.api_id, f.reporting_date
ORDER BY e.name, f.reporting_date`

// ViewFilingAge shows how old the reported data is (months of 29.53 days)
// and how many days processing took after the filing was added.
const viewFilingAge = `CREATE VIEW IF NOT EXISTS ViewFilingAge AS
SELECT
  e.name AS entity_name,
  f.reporting_date,
  CAST(round((julianday('now', 'start of day') - julianday(f.reporting_date)) / 29.53) AS INTEGER) AS age_months,
  f.country,
  f.language,
  f.added_time,
  f.processed_time,
  CAST(round(julianday(date(f.processed_time)) - julianday(date(f.added_time))) AS INTEGER) AS added_to_processed_days,
  f.api_id AS filing_api_id,
  e.api_id AS entity_api_id
FROM Filing AS f
  JOIN Entity AS e ON e.api_id = f.entity_api_id
ORDER BY age_months DESC`

// ViewNumericErrors lists calculation inconsistencies and duplicated
// facts of one language version per report, worst relative error first.
// A duplicate pair reported twice in a filing is listed once.
const viewNumericErrors = `CREATE VIEW IF NOT EXISTS ViewNumericErrors AS
WITH versions AS (
  SELECT
    f.api_id,
    f.entity_api_id,
    f.reporting_date,
    f.language,
    e.name AS entity_name,
    row_number() OVER (PARTITION BY f.entity_api_id, f.reporting_date ORDER BY f.language) AS version
  FROM Filing AS f
    JOIN Entity AS e ON e.api_id = f.entity_api_id
),
duplicates AS (
  SELECT
    m.*,
    row_number() OVER (PARTITION BY m.filing_api_id, m.duplicate_greater, m.duplicate_lesser ORDER BY m.api_id) AS occurrence
  FROM ValidationMessage AS m
  WHERE m.code = 'message:tech_duplicated_facts1'
)
SELECT * FROM (
  SELECT
    v.entity_name,
    v.reporting_date,
    'calc' AS problem,
    m.calc_reported_sum / 1000 AS reported_k,
    m.calc_computed_sum / 1000 AS computed_or_duplicate_k,
    abs(m.calc_reported_sum - m.calc_computed_sum) / 1000 AS error_k,
    round(100 * abs((m.calc_reported_sum - m.calc_computed_sum) / m.calc_reported_sum), 2) AS error_percent,
    m.calc_line_item,
    m.calc_short_role,
    m.calc_context_id,
    v.language,
    v.api_id AS filing_api_id,
    v.entity_api_id,
    m.api_id AS validation_message_api_id
  FROM versions AS v
    JOIN ValidationMessage AS m ON m.filing_api_id = v.api_id
  WHERE v.version = 1 AND m.code = 'xbrl.5.2.5.2:calcInconsistency'

  UNION ALL

  SELECT
    v.entity_name,
    v.reporting_date,
    'duplicate' AS problem,
    d.duplicate_lesser / 1000,
    d.duplicate_greater / 1000,
    (d.duplicate_greater - d.duplicate_lesser) / 1000,
    round(100 * abs((d.duplicate_greater - d.duplicate_lesser) / d.duplicate_lesser), 2),
    NULL,
    NULL,
    NULL,
    v.language,
    v.api_id,
    v.entity_api_id,
    d.api_id
  FROM versions AS v
    JOIN duplicates AS d ON d.filing_api_id = v.api_id
  WHERE v.version = 1 AND d.occurrence = 1
)
ORDER BY error_percent DESC NULLS FIRST`
