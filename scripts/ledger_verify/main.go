// Command ledger_verify checks the version and send ledgers for integrity
// violations. It is meant to run from cron or by hand after incidents; a
// non-zero exit means the ledger needs attention.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type violation struct {
	Check      string
	ProposalID string
	Detail     string
}

func main() {
	var (
		dsn     string
		timeout time.Duration
	)

	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "overall query timeout")
	flag.Parse()

	if dsn == "" {
		log.Fatal("no DSN provided, set -dsn or DATABASE_URL")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var violations []violation
	for _, check := range []func(context.Context, *sqlx.DB) ([]violation, error){
		checkVersionPointers,
		checkVersionSequences,
		checkSendReferences,
		checkSentVersionsLocked,
		checkEmbeddedCopies,
	} {
		found, err := check(ctx, db)
		if err != nil {
			log.Fatalf("check failed: %v", err)
		}
		violations = append(violations, found...)
	}

	printReport(violations)
	if len(violations) > 0 {
		os.Exit(1)
	}
}

// checkVersionPointers verifies current_version matches the highest snapshot.
func checkVersionPointers(ctx context.Context, db *sqlx.DB) ([]violation, error) {
	const query = `SELECT p.id, p.current_version, COALESCE(MAX(v.version), 0) AS max_version
		FROM proposals p
		LEFT JOIN proposal_versions v ON v.proposal_id = p.id
		GROUP BY p.id, p.current_version
		HAVING p.current_version <> COALESCE(MAX(v.version), 0)`

	var rows []struct {
		ID             string `db:"id"`
		CurrentVersion int    `db:"current_version"`
		MaxVersion     int    `db:"max_version"`
	}
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("version pointers: %w", err)
	}

	var out []violation
	for _, r := range rows {
		out = append(out, violation{
			Check:      "version_pointer",
			ProposalID: r.ID,
			Detail:     fmt.Sprintf("current_version=%d but max snapshot=%d", r.CurrentVersion, r.MaxVersion),
		})
	}
	return out, nil
}

// checkVersionSequences verifies version numbers are gapless from 1.
func checkVersionSequences(ctx context.Context, db *sqlx.DB) ([]violation, error) {
	const query = `SELECT proposal_id, COUNT(*) AS versions, MAX(version) AS max_version
		FROM proposal_versions
		GROUP BY proposal_id
		HAVING COUNT(*) <> MAX(version)`

	var rows []struct {
		ProposalID string `db:"proposal_id"`
		Versions   int    `db:"versions"`
		MaxVersion int    `db:"max_version"`
	}
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("version sequences: %w", err)
	}

	var out []violation
	for _, r := range rows {
		out = append(out, violation{
			Check:      "version_sequence",
			ProposalID: r.ProposalID,
			Detail:     fmt.Sprintf("%d snapshots but max version is %d", r.Versions, r.MaxVersion),
		})
	}
	return out, nil
}

// checkSendReferences verifies every send points at an existing snapshot.
func checkSendReferences(ctx context.Context, db *sqlx.DB) ([]violation, error) {
	const query = `SELECT s.id, s.proposal_id, s.version
		FROM proposal_sends s
		LEFT JOIN proposal_versions v ON v.proposal_id = s.proposal_id AND v.version = s.version
		WHERE v.id IS NULL`

	var rows []struct {
		ID         string `db:"id"`
		ProposalID string `db:"proposal_id"`
		Version    int    `db:"version"`
	}
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("send references: %w", err)
	}

	var out []violation
	for _, r := range rows {
		out = append(out, violation{
			Check:      "send_reference",
			ProposalID: r.ProposalID,
			Detail:     fmt.Sprintf("send %s references missing version %d", r.ID, r.Version),
		})
	}
	return out, nil
}

// checkSentVersionsLocked verifies every transmitted snapshot carries the lock.
func checkSentVersionsLocked(ctx context.Context, db *sqlx.DB) ([]violation, error) {
	const query = `SELECT DISTINCT v.proposal_id, v.version
		FROM proposal_versions v
		JOIN proposal_sends s ON s.proposal_id = v.proposal_id AND s.version = v.version
		WHERE v.is_locked = FALSE OR v.is_sent = FALSE`

	var rows []struct {
		ProposalID string `db:"proposal_id"`
		Version    int    `db:"version"`
	}
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("sent versions locked: %w", err)
	}

	var out []violation
	for _, r := range rows {
		out = append(out, violation{
			Check:      "sent_version_unlocked",
			ProposalID: r.ProposalID,
			Detail:     fmt.Sprintf("version %d was sent but is not locked", r.Version),
		})
	}
	return out, nil
}

// checkEmbeddedCopies verifies the embedded copy matches the snapshot it was
// taken from. A mismatch means a snapshot mutated after a send.
func checkEmbeddedCopies(ctx context.Context, db *sqlx.DB) ([]violation, error) {
	const query = `SELECT s.id, s.proposal_id, s.version
		FROM proposal_sends s
		JOIN proposal_versions v ON v.proposal_id = s.proposal_id AND v.version = s.version
		WHERE s.embedded_content <> v.content`

	var rows []struct {
		ID         string `db:"id"`
		ProposalID string `db:"proposal_id"`
		Version    int    `db:"version"`
	}
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("embedded copies: %w", err)
	}

	var out []violation
	for _, r := range rows {
		out = append(out, violation{
			Check:      "embedded_copy_drift",
			ProposalID: r.ProposalID,
			Detail:     fmt.Sprintf("send %s embedded content differs from version %d", r.ID, r.Version),
		})
	}
	return out, nil
}

func printReport(violations []violation) {
	fmt.Println("Ledger Integrity Report")
	fmt.Println("=======================")
	if len(violations) == 0 {
		fmt.Println("OK: no violations found")
		return
	}
	for _, v := range violations {
		fmt.Printf("[%s] proposal=%s %s\n", v.Check, v.ProposalID, v.Detail)
	}
	fmt.Printf("Total violations: %d\n", len(violations))
}
