package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	-- Standard messages delivered to this node
	CREATE TABLE IF NOT EXISTS rx_packets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		src_id INTEGER NOT NULL,
		dest_id INTEGER NOT NULL,
		rssi INTEGER,
		snr INTEGER,
		duplicate INTEGER DEFAULT 0,
		missing_frames INTEGER DEFAULT 0,
		payload BLOB,
		received_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rx_packets_src ON rx_packets(src_id);
	CREATE INDEX IF NOT EXISTS idx_rx_packets_received ON rx_packets(received_at);

	-- Transmit outcomes
	CREATE TABLE IF NOT EXISTS tx_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dest_id INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tx_reports_created ON tx_reports(created_at);

	-- Last sighting per device
	CREATE TABLE IF NOT EXISTS sightings (
		device_id INTEGER PRIMARY KEY,
		last_rssi INTEGER,
		last_seen DATETIME NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// --- Received packets ---

// InsertRxPacket stores a received packet
func (db *DB) InsertRxPacket(p *RxPacket) (int64, error) {
	query := `INSERT INTO rx_packets
		(src_id, dest_id, rssi, snr, duplicate, missing_frames, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, p.SrcID, p.DestID, p.RSSI, p.SNR,
		p.Duplicate, p.MissingFrames, p.Payload, p.ReceivedAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRxPackets returns the most recent packets, newest first. A src of 0
// returns packets from every device.
func (db *DB) GetRxPackets(src uint8, limit int) ([]*RxPacket, error) {
	query := `SELECT id, src_id, dest_id, rssi, snr, duplicate, missing_frames, payload, received_at
		FROM rx_packets`
	args := []interface{}{}
	if src != 0 {
		query += ` WHERE src_id = ?`
		args = append(args, src)
	}
	query += ` ORDER BY received_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packets []*RxPacket
	for rows.Next() {
		p := &RxPacket{}
		if err := rows.Scan(&p.ID, &p.SrcID, &p.DestID, &p.RSSI, &p.SNR,
			&p.Duplicate, &p.MissingFrames, &p.Payload, &p.ReceivedAt); err != nil {
			return nil, err
		}
		packets = append(packets, p)
	}
	return packets, rows.Err()
}

// --- Transmit reports ---

// InsertTxReport stores a transmit outcome
func (db *DB) InsertTxReport(r *TxReport) (int64, error) {
	query := `INSERT INTO tx_reports (dest_id, outcome, detail, created_at) VALUES (?, ?, ?, ?)`

	result, err := db.conn.Exec(query, r.DestID, r.Outcome, r.Detail, r.CreatedAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetTxReports returns the most recent transmit outcomes, newest first
func (db *DB) GetTxReports(limit int) ([]*TxReport, error) {
	query := `SELECT id, dest_id, outcome, detail, created_at
		FROM tx_reports ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*TxReport
	for rows.Next() {
		r := &TxReport{}
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &r.DestID, &r.Outcome, &detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Detail = detail.String
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// --- Sightings ---

// UpsertSighting records the last time a device was heard
func (db *DB) UpsertSighting(s *Sighting) error {
	query := `
		INSERT INTO sightings (device_id, last_rssi, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			last_rssi = excluded.last_rssi,
			last_seen = excluded.last_seen
	`
	_, err := db.conn.Exec(query, s.DeviceID, s.LastRSSI, s.LastSeen)
	return err
}

// GetSightings returns every known device, most recently seen first
func (db *DB) GetSightings() ([]*Sighting, error) {
	rows, err := db.conn.Query(`SELECT device_id, last_rssi, last_seen FROM sightings ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sightings []*Sighting
	for rows.Next() {
		s := &Sighting{}
		if err := rows.Scan(&s.DeviceID, &s.LastRSSI, &s.LastSeen); err != nil {
			return nil, err
		}
		sightings = append(sightings, s)
	}
	return sightings, rows.Err()
}

// --- Maintenance ---

// GetStats counts journal rows
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		dest  *int64
		query string
	}{
		{&s.RxPackets, `SELECT COUNT(*) FROM rx_packets`},
		{&s.Duplicates, `SELECT COUNT(*) FROM rx_packets WHERE duplicate = 1`},
		{&s.TxReports, `SELECT COUNT(*) FROM tx_reports`},
		{&s.Delivered, `SELECT COUNT(*) FROM tx_reports WHERE outcome IN ('ok', 'reinit', 'missing-ack', 'missing-frames', 'broadcast')`},
		{&s.Failed, `SELECT COUNT(*) FROM tx_reports WHERE outcome IN ('failed', 'no-ack', 'behind')`},
		{&s.Peers, `SELECT COUNT(*) FROM sightings`},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Prune deletes packets and reports older than maxAge and returns the
// number of rows removed
func (db *DB) Prune(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	var total int64
	for _, query := range []string{
		`DELETE FROM rx_packets WHERE received_at < ?`,
		`DELETE FROM tx_reports WHERE created_at < ?`,
	} {
		result, err := db.conn.Exec(query, cutoff)
		if err != nil {
			return total, err
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}
