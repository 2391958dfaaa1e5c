// Command tokenadmin manages the API access tokens.
//
// Usage:
//
//	tokenadmin -tokens ./data/tokens.json add <name>
//	tokenadmin -tokens ./data/tokens.json list
//	tokenadmin -tokens ./data/tokens.json revoke <name>
//	tokenadmin -tokens ./data/tokens.json delete <name>
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/marsdhp/sme-interview/backend/internal/config"
	"github.com/marsdhp/sme-interview/backend/internal/token"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fatalf("load configuration: %v", err)
	}

	tokensFile := flag.String("tokens", cfg.Paths.TokensFile, "path to the token file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	tokens, err := token.Open(*tokensFile)
	if err != nil {
		fatalf("open token store: %v", err)
	}

	switch args[0] {
	case "add":
		if len(args) != 2 {
			usage()
		}
		t, err := tokens.Add(args[1])
		if err != nil {
			fatalf("add token: %v", err)
		}
		fmt.Printf("token %q created\n%s\n", t.Name, t.Value)

	case "list":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCREATED\tLAST USED\tSESSIONS\tREVOKED")
		for _, t := range tokens.List() {
			lastUsed := "-"
			if t.LastUsedAt != nil {
				lastUsed = t.LastUsedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\n",
				t.Name, t.CreatedAt.Format(time.RFC3339), lastUsed, t.Sessions, t.Revoked)
		}
		w.Flush()

	case "revoke":
		if len(args) != 2 {
			usage()
		}
		if err := tokens.Revoke(args[1]); err != nil {
			fatalf("revoke token: %v", err)
		}
		fmt.Printf("token %q revoked\n", args[1])

	case "delete":
		if len(args) != 2 {
			usage()
		}
		if err := tokens.Delete(args[1]); err != nil {
			fatalf("delete token: %v", err)
		}
		fmt.Printf("token %q deleted\n", args[1])

	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tokenadmin [-tokens file] add|list|revoke|delete [name]")
	os.Exit(2)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
