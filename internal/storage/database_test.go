package storage

import (
	"os"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "lowapp-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp db: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	db, err := Open(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRxPacketStorage tests that received packets round trip through the journal
func TestRxPacketStorage(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	packets := []*RxPacket{
		{SrcID: 2, DestID: 1, RSSI: -40, SNR: 7, Payload: []byte("HELLO"), ReceivedAt: now.Add(-time.Second)},
		{SrcID: 3, DestID: 0xFF, RSSI: -90, SNR: -3, Duplicate: true, Payload: []byte("BCAST"), ReceivedAt: now},
		{SrcID: 2, DestID: 1, RSSI: -41, MissingFrames: 4, Payload: []byte("AGAIN"), ReceivedAt: now.Add(time.Second)},
	}
	for _, p := range packets {
		id, err := db.InsertRxPacket(p)
		if err != nil {
			t.Fatalf("InsertRxPacket failed: %v", err)
		}
		if id <= 0 {
			t.Error("Expected positive ID from insert")
		}
	}

	all, err := db.GetRxPackets(0, 10)
	if err != nil {
		t.Fatalf("GetRxPackets failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("packet count mismatch: got %d, want 3", len(all))
	}
	if string(all[0].Payload) != "AGAIN" {
		t.Errorf("newest payload mismatch: got %q, want %q", all[0].Payload, "AGAIN")
	}
	if all[0].MissingFrames != 4 {
		t.Errorf("MissingFrames mismatch: got %d, want 4", all[0].MissingFrames)
	}
	if !all[1].Duplicate || all[1].SNR != -3 {
		t.Errorf("broadcast packet mismatch: got %+v", all[1])
	}

	fromTwo, err := db.GetRxPackets(2, 10)
	if err != nil {
		t.Fatalf("GetRxPackets failed: %v", err)
	}
	if len(fromTwo) != 2 {
		t.Errorf("filtered count mismatch: got %d, want 2", len(fromTwo))
	}
}

// TestTxReportsAndStats tests outcome storage and the summary counters
func TestTxReportsAndStats(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	reports := []*TxReport{
		{DestID: 2, Outcome: "ok", CreatedAt: now},
		{DestID: 2, Outcome: "missing-ack", Detail: "1", CreatedAt: now},
		{DestID: 0xFF, Outcome: OutcomeBroadcast, CreatedAt: now},
		{DestID: 3, Outcome: OutcomeRetry, Detail: "1", CreatedAt: now},
		{DestID: 3, Outcome: OutcomeFailed, CreatedAt: now},
		{DestID: 4, Outcome: OutcomeNoAck, Detail: "RXTIMEOUT", CreatedAt: now},
	}
	for _, r := range reports {
		if _, err := db.InsertTxReport(r); err != nil {
			t.Fatalf("InsertTxReport failed: %v", err)
		}
	}
	if _, err := db.InsertRxPacket(&RxPacket{SrcID: 2, DestID: 1, Duplicate: true, ReceivedAt: now}); err != nil {
		t.Fatalf("InsertRxPacket failed: %v", err)
	}

	got, err := db.GetTxReports(2)
	if err != nil {
		t.Fatalf("GetTxReports failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("report count mismatch: got %d, want 2", len(got))
	}
	if got[0].Outcome != OutcomeNoAck || got[0].Detail != "RXTIMEOUT" {
		t.Errorf("newest report mismatch: got %+v", got[0])
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	want := Stats{RxPackets: 1, Duplicates: 1, TxReports: 6, Delivered: 3, Failed: 2}
	if *stats != want {
		t.Errorf("stats mismatch: got %+v, want %+v", *stats, want)
	}
}

// TestSightingUpsert tests that a device keeps a single, updated row
func TestSightingUpsert(t *testing.T) {
	db := openTestDB(t)

	first := time.Now().Add(-time.Minute)
	if err := db.UpsertSighting(&Sighting{DeviceID: 5, LastRSSI: -80, LastSeen: first}); err != nil {
		t.Fatalf("UpsertSighting failed: %v", err)
	}
	if err := db.UpsertSighting(&Sighting{DeviceID: 5, LastRSSI: -55, LastSeen: time.Now()}); err != nil {
		t.Fatalf("UpsertSighting failed: %v", err)
	}
	if err := db.UpsertSighting(&Sighting{DeviceID: 6, LastRSSI: -70, LastSeen: first}); err != nil {
		t.Fatalf("UpsertSighting failed: %v", err)
	}

	sightings, err := db.GetSightings()
	if err != nil {
		t.Fatalf("GetSightings failed: %v", err)
	}
	if len(sightings) != 2 {
		t.Fatalf("sighting count mismatch: got %d, want 2", len(sightings))
	}
	if sightings[0].DeviceID != 5 || sightings[0].LastRSSI != -55 {
		t.Errorf("latest sighting mismatch: got %+v", sightings[0])
	}
}

// TestPrune tests that old rows are removed and recent ones kept
func TestPrune(t *testing.T) {
	db := openTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	db.InsertRxPacket(&RxPacket{SrcID: 2, DestID: 1, ReceivedAt: old})
	db.InsertRxPacket(&RxPacket{SrcID: 2, DestID: 1, ReceivedAt: time.Now()})
	db.InsertTxReport(&TxReport{DestID: 2, Outcome: "ok", CreatedAt: old})

	removed, err := db.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed mismatch: got %d, want 2", removed)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.RxPackets != 1 || stats.TxReports != 0 {
		t.Errorf("stats after prune mismatch: got %+v", *stats)
	}
}
