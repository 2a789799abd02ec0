package main

import (
	"fmt"
	"io"
	"strings"

	"orderchain/cmd/internal/passphrase"
	"orderchain/core/types"
	"orderchain/crypto"
)

var saveKey = crypto.SaveToKeystore

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	var out string
	fs.StringVar(&out, "out", "", "keystore file to write")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(out) == "" {
		return printError(stderr, "--out is required")
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return handleError(stderr, err)
	}
	pass, err := passphrase.NewSource(keystorePassEnv, "Choose keystore passphrase: ").Get()
	if err != nil {
		return handleError(stderr, err)
	}
	if err := saveKey(out, key, pass); err != nil {
		return handleError(stderr, err)
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(stdout, "Address: %s\n", addr.String())
	fmt.Fprintf(stdout, "Hex:     %s\n", addr.Common().Hex())
	fmt.Fprintf(stdout, "Notice:  0x%x\n", key.PubKey().NoticeKey())
	return 0
}

func runApprove(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("approve", stderr)
	var keyFile, tokenSymbol, spender, amount string
	fs.StringVar(&keyFile, "key", "", "owner keystore file")
	fs.StringVar(&tokenSymbol, "token", "", "token symbol")
	fs.StringVar(&spender, "spender", "", "spender address (usually the store escrow)")
	fs.StringVar(&amount, "amount", "", "allowance in base units")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(tokenSymbol) == "" {
		return printError(stderr, "--token is required")
	}
	if strings.TrimSpace(spender) == "" {
		return printError(stderr, "--spender is required")
	}
	spenderAddr, err := parseOptionalAddress("spender", spender)
	if err != nil {
		return printError(stderr, err.Error())
	}
	value, err := parseAmount("amount", amount)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return handleError(stderr, err)
	}
	payload := types.ApprovePayload{
		Token:   strings.ToUpper(strings.TrimSpace(tokenSymbol)),
		Spender: spenderAddr,
		Amount:  value,
	}
	result, err := sendSignedCall(key, types.CallTokenApprove, nil, payload)
	if err != nil {
		return handleError(stderr, err)
	}
	writeRPCResult(stdout, result)
	return 0
}

// runTransfer moves native value, or a token when --token is set.
func runTransfer(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer", stderr)
	var keyFile, tokenSymbol, to, amount string
	fs.StringVar(&keyFile, "key", "", "sender keystore file")
	fs.StringVar(&tokenSymbol, "token", "", "token symbol; empty moves native value")
	fs.StringVar(&to, "to", "", "recipient address")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(to) == "" {
		return printError(stderr, "--to is required")
	}
	recipient, err := parseOptionalAddress("to", to)
	if err != nil {
		return printError(stderr, err.Error())
	}
	value, err := parseAmount("amount", amount)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if value.Sign() == 0 {
		return printError(stderr, "--amount must be positive")
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return handleError(stderr, err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(tokenSymbol))
	callType := types.CallBankTransfer
	if symbol != "" {
		callType = types.CallTokenTransfer
	}
	result, err := sendSignedCall(key, callType, nil, types.TransferPayload{Token: symbol, To: recipient, Amount: value})
	if err != nil {
		return handleError(stderr, err)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var address, tokenSymbol string
	fs.StringVar(&address, "address", "", "account address")
	fs.StringVar(&tokenSymbol, "token", "", "token symbol; empty reads the native balance")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(address) == "" {
		return printError(stderr, "--address is required")
	}
	method := "bank_balance"
	params := map[string]string{"address": strings.TrimSpace(address)}
	if symbol := strings.ToUpper(strings.TrimSpace(tokenSymbol)); symbol != "" {
		method = "token_balanceOf"
		params["token"] = symbol
	}
	result, rpcErr, err := rpcCall(method, params, false)
	if err != nil {
		return handleError(stderr, err)
	}
	if rpcErr != nil {
		return handleError(stderr, &rpcFailure{err: rpcErr})
	}
	writeRPCResult(stdout, result)
	return 0
}

// runMine advances the chain by empty blocks. It needs an operator token.
func runMine(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mine", stderr)
	var blocks uint64
	fs.Uint64Var(&blocks, "blocks", 1, "number of empty blocks to seal")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if blocks == 0 {
		return printError(stderr, "--blocks must be positive")
	}
	result, rpcErr, err := rpcCall("chain_mine", map[string]uint64{"blocks": blocks}, true)
	if err != nil {
		return handleError(stderr, err)
	}
	if rpcErr != nil {
		return handleError(stderr, &rpcFailure{err: rpcErr})
	}
	writeRPCResult(stdout, result)
	return 0
}
