package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HSPiira/timeline-sub001/internal/db"
	"github.com/HSPiira/timeline-sub001/internal/verify"
	"github.com/HSPiira/timeline-sub001/pkg/hashchain"
)

func main() {
	dbURL := flag.String("db", "", "Postgres connection string")
	tenantID := flag.String("tenant", "", "Tenant ID to verify")
	subjectID := flag.String("subject", "", "Subject ID to verify (optional; all subjects when omitted)")
	algorithm := flag.String("algorithm", "sha256", "Digest algorithm the chain was written with (sha256|sha512)")
	limit := flag.Int("limit", 0, "Max events to examine in a tenant-wide sweep (0 = all)")
	flag.Parse()

	if *dbURL == "" || *tenantID == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dbURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	engine, err := hashchain.NewEngine(hashchain.Algorithm(*algorithm))
	if err != nil {
		log.Fatal(err)
	}
	verifier := verify.New(engine, db.NewEventRepository(pool))

	var res *verify.ChainResult
	if *subjectID != "" {
		fmt.Printf("Verifying chain for %s/%s...\n", *tenantID, *subjectID)
		res, err = verifier.VerifySubjectChain(ctx, *tenantID, *subjectID)
	} else {
		fmt.Printf("Verifying all chains for tenant %s...\n", *tenantID)
		res, err = verifier.VerifyTenantChains(ctx, *tenantID, *limit)
	}
	if err != nil {
		log.Fatal(err)
	}

	for _, ev := range res.Events {
		if ev.IsValid {
			continue
		}
		fmt.Printf("❌ %s at event %s (seq %d)\n", ev.ErrorType, ev.EventID, ev.Sequence)
		fmt.Printf("   Expected: %s\n", ev.ExpectedHash)
		fmt.Printf("   Actual:   %s\n", ev.ActualHash)
	}

	if res.IsChainValid {
		fmt.Printf("\n✅ Verification Complete. Chain is INTACT.\n")
		fmt.Printf("   Total Events: %d\n", res.TotalEvents)
		return
	}

	fmt.Printf("\n❌ Verification Complete. Chain is TAMPERED.\n")
	fmt.Printf("   Total Events:   %d\n", res.TotalEvents)
	fmt.Printf("   Invalid Events: %d\n", res.InvalidEvents)
	os.Exit(1)
}
