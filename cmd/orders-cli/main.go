package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"orderchain/core/types"
)

type command func(args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"generate-key": runGenerateKey,
	"submit":       runSubmit,
	"confirm":      runOrderRef("confirm", types.CallConfirm, true),
	"hand-off":     runShipment("hand-off", types.CallHandOff),
	"ship":         runShipment("ship", types.CallShip),
	"deliver":      runOrderRef("deliver", types.CallDeliver, false),
	"complete":     runOrderRef("complete", types.CallComplete, false),
	"cancel":       runOrderRef("cancel", types.CallCancel, false),
	"dispute":      runOrderRef("dispute", types.CallDispute, false),
	"resolve":      runResolve,
	"order":        runOrderGet,
	"approve":      runApprove,
	"transfer":     runTransfer,
	"balance":      runBalance,
	"mine":         runMine,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
	return cmd(args[1:], stdout, stderr)
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`
Usage: orders-cli [--rpc URL] <command> [flags]

Order commands:
  submit    --key FILE --id ID --price N [--shipping N] [--value N] [--reporter ADDR] [--arbiter ADDR]
  confirm   --key FILE --id ID [--bond N]
  hand-off  --key FILE --id ID --notice TEXT
  ship      --key FILE --id ID --notice TEXT [--bond N]
  deliver   --key FILE --id ID
  complete  --key FILE --id ID
  cancel    --key FILE --id ID
  dispute   --key FILE --id ID
  resolve   --key FILE --id ID [--refund]
  order     --id ID

Account commands:
  generate-key --out FILE
  approve      --key FILE --token SYM --spender ADDR --amount N
  transfer     --key FILE --to ADDR --amount N [--token SYM]
  balance      --address ADDR [--token SYM]
  mine         [--blocks N]   (requires ORDERS_OPERATOR_TOKEN)

Environment:
  ORDERS_RPC_URL         node JSON-RPC endpoint (default http://localhost:8080)
  ORDERS_KEYSTORE_PASS   keystore passphrase; prompted when unset
  ORDERS_OPERATOR_TOKEN  operator bearer token for mine`)
}
