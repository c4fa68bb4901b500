// LoWAPP journal CLI
// Command-line access to the SQLite journal written by lowapp-node
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/agsys/lowapp/internal/storage"
)

var (
	dbPath  string
	rootCmd = &cobra.Command{
		Use:   "lowapp-db",
		Short: "LoWAPP journal CLI",
		Long:  "Command-line tool for inspecting the journal of a LoWAPP node: received packets, transmit outcomes and peer sightings.",
	}

	rxCmd = &cobra.Command{
		Use:   "rx [src-id]",
		Short: "Show received packets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showRxPackets,
	}

	txCmd = &cobra.Command{
		Use:   "tx",
		Short: "Show transmit outcomes",
		RunE:  showTxReports,
	}

	whoCmd = &cobra.Command{
		Use:   "who",
		Short: "Show peer sightings",
		RunE:  showSightings,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show journal statistics",
		RunE:  showStats,
	}

	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete old packets and reports",
		RunE:  prune,
	}

	queryCmd = &cobra.Command{
		Use:   "query [sql]",
		Short: "Execute a raw SQL query",
		Args:  cobra.ExactArgs(1),
		RunE:  executeQuery,
	}

	limit  int
	maxAge time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "/var/lib/lowapp/journal.db", "Database file path")

	rxCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	txCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	pruneCmd.Flags().DurationVar(&maxAge, "older-than", 7*24*time.Hour, "Delete records older than this")

	rootCmd.AddCommand(rxCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(whoCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openJournal() (*storage.DB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("journal not found: %w", err)
	}
	return storage.Open(dbPath)
}

func showRxPackets(cmd *cobra.Command, args []string) error {
	var src uint64
	if len(args) > 0 {
		var err error
		src, err = parseID(args[0])
		if err != nil {
			return err
		}
	}

	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	pkts, err := db.GetRxPackets(uint8(src), limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSRC\tDEST\tRSSI\tSNR\tDUP\tMISSING\tPAYLOAD")
	fmt.Fprintln(w, "----\t---\t----\t----\t---\t---\t-------\t-------")

	for _, p := range pkts {
		dup := ""
		if p.Duplicate {
			dup = "yes"
		}
		fmt.Fprintf(w, "%s\t%02X\t%02X\t%d\t%d\t%s\t%d\t%q\n",
			p.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
			p.SrcID, p.DestID, p.RSSI, p.SNR, dup, p.MissingFrames, p.Payload)
	}
	w.Flush()
	return nil
}

func showTxReports(cmd *cobra.Command, args []string) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	reports, err := db.GetTxReports(limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDEST\tOUTCOME\tDETAIL")
	fmt.Fprintln(w, "----\t----\t-------\t------")

	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%02X\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.DestID, r.Outcome, r.Detail)
	}
	w.Flush()
	return nil
}

func showSightings(cmd *cobra.Command, args []string) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	sightings, err := db.GetSightings()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tLAST RSSI\tLAST SEEN")
	fmt.Fprintln(w, "------\t---------\t---------")

	for _, s := range sightings {
		fmt.Fprintf(w, "%02X\t%d\t%s\n", s.DeviceID, s.LastRSSI, formatAgo(s.LastSeen))
	}
	w.Flush()
	return nil
}

func showStats(cmd *cobra.Command, args []string) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	st, err := db.GetStats()
	if err != nil {
		return err
	}

	fmt.Println("Journal Statistics")
	fmt.Println("==================")
	fmt.Printf("Received packets: %d (duplicates: %d)\n", st.RxPackets, st.Duplicates)
	fmt.Printf("Transmissions: %d (delivered: %d, failed: %d)\n", st.TxReports, st.Delivered, st.Failed)
	fmt.Printf("Peers seen: %d\n", st.Peers)
	return nil
}

func prune(cmd *cobra.Command, args []string) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.Prune(maxAge)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d records older than %s\n", n, maxAge)
	return nil
}

func executeQuery(cmd *cobra.Command, args []string) error {
	db, err := sql.Open("sqlite3", dbPath+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	query := args[0]

	// Only allow SELECT queries for safety
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return fmt.Errorf("only SELECT queries are allowed")
	}

	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	fmt.Fprintln(w, strings.Repeat("-\t", len(cols)))

	values := make([]interface{}, len(cols))
	valuePtrs := make([]interface{}, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}

		var row []string
		for _, v := range values {
			switch val := v.(type) {
			case nil:
				row = append(row, "NULL")
			case []byte:
				row = append(row, string(val))
			default:
				row = append(row, fmt.Sprintf("%v", val))
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	return rows.Err()
}

func parseID(s string) (uint64, error) {
	var id uint64
	if _, err := fmt.Sscanf(s, "%x", &id); err != nil || id > 0xFF {
		return 0, fmt.Errorf("invalid device id %q", s)
	}
	return id, nil
}

func formatAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}
