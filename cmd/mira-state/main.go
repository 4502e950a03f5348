// mira-state is the operator's escape hatch: direct, lock-overriding
// access to relationship metrics and facts, plus store and process
// status. Writes made here bypass the sentiment analyzer's delta caps
// and lock checks on purpose.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/mirabot/mira/internal/store"
	"github.com/mirabot/mira/internal/types"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mira-state <command> [flags]

Commands:
  stats      -db <path>                               show table counts
  metrics    -db <path> -user <id>                    show a user's metrics
  set        -db <path> -user <id> -dim <name> -value <n>   set a dimension (overrides locks)
  lock       -db <path> -user <id> -dim <name>        lock a dimension
  unlock     -db <path> -user <id> -dim <name>        unlock a dimension
  facts      -db <path> -user <id> [-all]             list a user's facts
  add-fact   -db <path> -user <id> -text <fact>       insert a fact directly
  edit-fact  -db <path> -id <factID> -text <fact>     overwrite a fact's text
  del-fact   -db <path> -id <factID>                  hard-delete a fact
  status                                              show bot process status
`)
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	dbPath := fs.String("db", "", "Path to guild database file")
	userID := fs.Int64("user", 0, "User ID")
	factID := fs.Int64("id", 0, "Fact ID")
	dimName := fs.String("dim", "", "Dimension name")
	value := fs.Int("value", 0, "Dimension value")
	text := fs.String("text", "", "Fact text")
	all := fs.Bool("all", false, "Include superseded facts")
	fs.Parse(os.Args[2:])

	if cmd == "status" {
		showStatus()
		return
	}

	if *dbPath == "" {
		log.Fatal("-db is required")
	}
	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch cmd {
	case "stats":
		stats, err := db.Stats()
		if err != nil {
			log.Fatalf("Failed to get stats: %v", err)
		}
		for _, t := range []string{"users", "long_term_memory", "relationship_metrics", "short_term_message_log", "message_archive"} {
			log.Printf("%-24s %d", t, stats[t])
		}

	case "metrics":
		requireUser(*userID)
		m, err := db.GetMetrics(*userID)
		if err != nil {
			log.Fatalf("Failed to get metrics: %v", err)
		}
		for _, d := range types.AllDimensions {
			lock := ""
			if m.Locked[d] {
				lock = "  [locked]"
			}
			log.Printf("%-14s %3d%s", d, m.Values[d], lock)
		}

	case "set":
		requireUser(*userID)
		d := parseDim(*dimName)
		// Administrative path: locks overridden.
		if _, err := db.UpdateMetrics(*userID, map[types.Dimension]int{d: *value}, false); err != nil {
			log.Fatalf("Failed to set %s: %v", d, err)
		}
		log.Printf("user %d: %s = %d", *userID, d, d.Clamp(*value))

	case "lock", "unlock":
		requireUser(*userID)
		d := parseDim(*dimName)
		if err := db.SetMetricLock(*userID, d, cmd == "lock"); err != nil {
			log.Fatalf("Failed to %s %s: %v", cmd, d, err)
		}
		log.Printf("user %d: %s %sed", *userID, d, cmd)

	case "facts":
		requireUser(*userID)
		var facts []*types.Fact
		if *all {
			facts, err = db.ListAllFacts(*userID)
		} else {
			facts, err = db.ListActiveFacts(*userID)
		}
		if err != nil {
			log.Fatalf("Failed to list facts: %v", err)
		}
		for _, f := range facts {
			printFact(f)
		}

	case "add-fact":
		requireUser(*userID)
		id, err := db.InsertFact(*userID, *text, 0, "operator")
		if err != nil {
			log.Fatalf("Failed to insert fact: %v", err)
		}
		log.Printf("fact %d added", id)

	case "edit-fact":
		if *factID == 0 {
			log.Fatal("-id is required")
		}
		if err := db.OverwriteFact(*factID, *text); err != nil {
			log.Fatalf("Failed to edit fact: %v", err)
		}
		log.Printf("fact %d updated", *factID)

	case "del-fact":
		if *factID == 0 {
			log.Fatal("-id is required")
		}
		if err := db.DeleteFact(*factID); err != nil {
			log.Fatalf("Failed to delete fact: %v", err)
		}
		log.Printf("fact %d deleted", *factID)

	default:
		usage()
	}
}

func requireUser(id int64) {
	if id == 0 {
		log.Fatal("-user is required")
	}
}

func parseDim(name string) types.Dimension {
	if name == "" {
		log.Fatal("-dim is required")
	}
	d, err := types.ParseDimension(name)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return d
}

func printFact(f *types.Fact) {
	log.Printf("[%d] (%s, refs %d, last %s) %s",
		f.ID, f.Status, f.ReferenceCount, f.LastMentioned.Format("2006-01-02"), f.Text)
}

// showStatus reports resource usage of running mira processes.
func showStatus() {
	procs, err := process.Processes()
	if err != nil {
		log.Fatalf("Failed to list processes: %v", err)
	}
	found := false
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name != "mira" {
			continue
		}
		found = true
		cpu, _ := p.CPUPercent()
		mem, _ := p.MemoryInfo()
		created, _ := p.CreateTime()
		uptime := time.Since(time.UnixMilli(created)).Round(time.Second)
		rss := uint64(0)
		if mem != nil {
			rss = mem.RSS / (1 << 20)
		}
		log.Printf("pid %d: cpu %.1f%%, rss %dMB, uptime %s", p.Pid, cpu, rss, uptime)
	}
	if !found {
		log.Println("no running mira process found")
	}
}
