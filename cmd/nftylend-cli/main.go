package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const usage = `nftylend-cli <command> [flags]

Commands:
  params                              show protocol parameters
  desks                               list lending desks
  desk -id N                          show one desk with its loan configs
  loans [-desk N]                     list loans, optionally for one desk
  loan -id N                          show one loan
  due -id N                           show the outstanding debt on a loan
  fees -currency C                    show accumulated platform fees
  balance -currency C -addr A         show a currency balance
  mint -currency C -to A -amount X    faucet mint (local environments only)
  register -collection C -nft N -owner A
                                      faucet register an NFT owner
  approve -owner A                    approve the vault as collateral operator
  allow -currency C -owner A -spender S -amount X
                                      set a currency spending allowance; the
                                      vault (see params) must be allowed
                                      before funding desks or repaying loans
  create-desk -owner A -currency C -balance X -configs JSON
                                      open a lending desk
  add-liquidity -caller A -desk N -amount X
  withdraw-liquidity -caller A -desk N -amount X
  originate -borrower A -desk N -collection C -nft N -hours H -amount X
  pay -caller A -loan N [-amount X] [-full]
  liquidate -caller A -loan N
  events [-cursor N]                  tail the ledger event stream

Global flags (before the command):
  -rpc URL     RPC endpoint (default http://localhost:8545)
  -auth TOKEN  bearer token for mutating calls
`

type client struct {
	endpoint string
	token    string
	http     *http.Client
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) call(method string, params interface{}) (json.RawMessage, error) {
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: 1}
	if params != nil {
		req.Params = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded rpcResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("%s (code %d)", decoded.Error.Message, decoded.Error.Code)
	}
	return decoded.Result, nil
}

func printJSON(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

func run(c *client, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	switch command {
	case "params":
		raw, err := c.call("lending_getProtocolParams", nil)
		if err != nil {
			return err
		}
		printJSON(raw)
	case "desks":
		raw, err := c.call("lending_listDesks", nil)
		if err != nil {
			return err
		}
		printJSON(raw)
	case "desk":
		id := fs.Uint64("id", 0, "desk id")
		_ = fs.Parse(args)
		raw, err := c.call("lending_getDesk", map[string]interface{}{"deskId": *id})
		if err != nil {
			return err
		}
		printJSON(raw)
		configs, err := c.call("lending_getLoanConfigs", map[string]interface{}{"deskId": *id})
		if err != nil {
			return err
		}
		printJSON(configs)
	case "loans":
		deskID := fs.Uint64("desk", 0, "restrict to one desk")
		_ = fs.Parse(args)
		var params map[string]interface{}
		if *deskID != 0 {
			params = map[string]interface{}{"deskId": *deskID}
		}
		raw, err := c.call("lending_listLoans", params)
		if err != nil {
			return err
		}
		printJSON(raw)
	case "loan":
		id := fs.Uint64("id", 0, "loan id")
		_ = fs.Parse(args)
		raw, err := c.call("lending_getLoan", map[string]interface{}{"loanId": *id})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "due":
		id := fs.Uint64("id", 0, "loan id")
		_ = fs.Parse(args)
		raw, err := c.call("lending_getLoanAmountDue", map[string]interface{}{"loanId": *id})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "fees":
		currency := fs.String("currency", "", "currency symbol")
		_ = fs.Parse(args)
		raw, err := c.call("lending_getAccumulatedFees", map[string]interface{}{"currency": *currency})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "balance":
		currency := fs.String("currency", "", "currency symbol")
		addr := fs.String("addr", "", "account address")
		_ = fs.Parse(args)
		raw, err := c.call("bank_balanceOf", map[string]interface{}{"currency": *currency, "address": *addr})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "mint":
		currency := fs.String("currency", "", "currency symbol")
		to := fs.String("to", "", "recipient address")
		amount := fs.String("amount", "", "amount to mint")
		_ = fs.Parse(args)
		raw, err := c.call("bank_faucetMint", map[string]interface{}{
			"currency": *currency, "to": *to, "amount": *amount,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "register":
		collection := fs.String("collection", "", "collection identifier")
		nftID := fs.Uint64("nft", 0, "token id")
		owner := fs.String("owner", "", "owner address")
		_ = fs.Parse(args)
		raw, err := c.call("custody_registerToken", map[string]interface{}{
			"collection": *collection, "nftId": *nftID, "owner": *owner,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "allow":
		currency := fs.String("currency", "", "currency symbol")
		owner := fs.String("owner", "", "owner address")
		spender := fs.String("spender", "", "spender address")
		amount := fs.String("amount", "", "allowance amount")
		_ = fs.Parse(args)
		raw, err := c.call("bank_approve", map[string]interface{}{
			"currency": *currency, "owner": *owner, "spender": *spender, "amount": *amount,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "approve":
		owner := fs.String("owner", "", "owner address")
		revoke := fs.Bool("revoke", false, "revoke instead of grant")
		_ = fs.Parse(args)
		raw, err := c.call("custody_setApproval", map[string]interface{}{
			"owner": *owner, "approved": !*revoke,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "create-desk":
		owner := fs.String("owner", "", "desk owner address")
		currency := fs.String("currency", "", "desk currency")
		balance := fs.String("balance", "0", "initial balance")
		configs := fs.String("configs", "[]", "loan configs as JSON")
		_ = fs.Parse(args)
		var parsed []map[string]interface{}
		if err := json.Unmarshal([]byte(*configs), &parsed); err != nil {
			return fmt.Errorf("invalid -configs JSON: %w", err)
		}
		raw, err := c.call("lending_createLendingDesk", map[string]interface{}{
			"owner": *owner, "currency": *currency, "initialBalance": *balance, "loanConfigs": parsed,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "add-liquidity", "withdraw-liquidity":
		caller := fs.String("caller", "", "desk owner address")
		deskID := fs.Uint64("desk", 0, "desk id")
		amount := fs.String("amount", "", "amount")
		_ = fs.Parse(args)
		method := "lending_addLiquidity"
		if command == "withdraw-liquidity" {
			method = "lending_withdrawLiquidity"
		}
		raw, err := c.call(method, map[string]interface{}{
			"caller": *caller, "deskId": *deskID, "amount": *amount,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "originate":
		borrower := fs.String("borrower", "", "borrower address")
		deskID := fs.Uint64("desk", 0, "desk id")
		collection := fs.String("collection", "", "collection identifier")
		nftID := fs.Uint64("nft", 0, "token id")
		hours := fs.Uint64("hours", 0, "loan duration in hours")
		amount := fs.String("amount", "", "principal amount")
		_ = fs.Parse(args)
		raw, err := c.call("lending_initializeNewLoan", map[string]interface{}{
			"borrower": *borrower, "deskId": *deskID, "collection": *collection,
			"nftId": *nftID, "duration": *hours, "amount": *amount,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "pay":
		caller := fs.String("caller", "", "borrower address")
		loanID := fs.Uint64("loan", 0, "loan id")
		amount := fs.String("amount", "", "payment amount")
		full := fs.Bool("full", false, "resolve the loan in full")
		_ = fs.Parse(args)
		raw, err := c.call("lending_makeLoanPayment", map[string]interface{}{
			"caller": *caller, "loanId": *loanID, "amount": *amount, "resolveInFull": *full,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "liquidate":
		caller := fs.String("caller", "", "desk owner address")
		loanID := fs.Uint64("loan", 0, "loan id")
		_ = fs.Parse(args)
		raw, err := c.call("lending_liquidateDefaultedLoan", map[string]interface{}{
			"caller": *caller, "loanId": *loanID,
		})
		if err != nil {
			return err
		}
		printJSON(raw)
	case "events":
		cursor := fs.Uint64("cursor", 0, "resume after this sequence number")
		_ = fs.Parse(args)
		return tailEvents(c, *cursor)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func tailEvents(c *client, cursor uint64) error {
	wsURL := strings.Replace(c.endpoint, "http", "ws", 1)
	wsURL = fmt.Sprintf("%s/ws/events?cursor=%d", strings.TrimSuffix(wsURL, "/"), cursor)

	ctx := context.Background()
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return err
		}
		fmt.Println(string(raw))
	}
}

func main() {
	endpoint := flag.String("rpc", "http://localhost:8545", "RPC endpoint")
	token := flag.String("auth", "", "bearer token for mutating calls")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := &client{
		endpoint: strings.TrimSuffix(*endpoint, "/"),
		token:    *token,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	if err := run(c, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
