package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"powchain/p2p"
)

func scriptsCmd() *cobra.Command {
	var (
		outDir       string
		address      string
		transactions int
	)

	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "Generate curl scripts that exercise a node's HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := p2p.NormalizeAddress(address)
			if err != nil {
				return err
			}
			written, err := writeScripts(outDir, addr, transactions)
			if err != nil {
				return err
			}
			for _, f := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "curl", "Output directory")
	cmd.Flags().StringVarP(&address, "address", "a", "localhost:5000", "Node address the scripts target")
	cmd.Flags().IntVarP(&transactions, "transactions", "n", 3, "Number of transaction scripts")
	return cmd
}

const scriptHeader = "#!/bin/bash\nset -u\n"

func curlLine(method, url, body string) string {
	line := fmt.Sprintf("curl -s -X %s %s --max-time 5 --connect-timeout 2", method, url)
	if body != "" {
		line += fmt.Sprintf(" \\\n  -H \"Content-Type: application/json\" \\\n  -d '%s'", body)
	}
	return line + " \\\n  | jq '.' 2>/dev/null || cat\necho\n"
}

// writeScripts writes one script per API call plus run_all.sh, returning the
// file names in the order run_all.sh calls them.
func writeScripts(dir, addr string, transactions int) ([]string, error) {
	base := "http://" + addr
	scripts := make(map[string]string)
	var order []string

	add := func(name, content string) {
		scripts[name] = scriptHeader + content
		order = append(order, name)
	}

	for i := 1; i <= transactions; i++ {
		body, err := json.Marshal(map[string]interface{}{
			"sender":    fmt.Sprintf("sender-%d", i),
			"recipient": fmt.Sprintf("recipient-%d", i),
			"amount":    i,
		})
		if err != nil {
			return nil, err
		}
		add(fmt.Sprintf("new_transaction_%d.sh", i),
			fmt.Sprintf("echo \"=== POST /transactions/new (%d) ===\"\n", i)+
				curlLine("POST", base+"/transactions/new", string(body)))
	}
	add("pending.sh", "echo \"=== GET /transactions/pending ===\"\n"+curlLine("GET", base+"/transactions/pending", ""))
	add("mine.sh", "echo \"=== GET /mine ===\"\n"+curlLine("GET", base+"/mine", ""))
	add("chain.sh", "echo \"=== GET /chain ===\"\n"+curlLine("GET", base+p2p.ChainPath, ""))
	add("register_node.sh", "PEER=${1:-localhost:5001}\necho \"=== POST /nodes/register $PEER ===\"\n"+
		strings.Replace(curlLine("POST", base+"/nodes/register", `{"nodes":["PEER_PLACEHOLDER"]}`),
			"'{\"nodes\":[\"PEER_PLACEHOLDER\"]}'", `"{\"nodes\":[\"$PEER\"]}"`, 1))
	add("resolve.sh", "echo \"=== GET /nodes/resolve ===\"\n"+curlLine("GET", base+"/nodes/resolve", ""))

	var all strings.Builder
	all.WriteString(scriptHeader)
	fmt.Fprintf(&all, "DIR=$(dirname \"$0\")\nif ! curl -s --connect-timeout 2 --max-time 2 %s%s > /dev/null; then\n", base, p2p.ChainPath)
	fmt.Fprintf(&all, "    echo \"Node not responding on %s\"\n    exit 1\nfi\n\n", addr)
	for _, name := range order {
		if name == "register_node.sh" {
			continue
		}
		fmt.Fprintf(&all, "\"$DIR/%s\" || echo \"%s failed, continuing...\"\n", name, name)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	written := make([]string, 0, len(order)+1)
	for _, name := range order {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(scripts[name]), 0755); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	path := filepath.Join(dir, "run_all.sh")
	if err := os.WriteFile(path, []byte(all.String()), 0755); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return append(written, path), nil
}
