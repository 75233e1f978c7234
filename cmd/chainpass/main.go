// chainpass is a command-line client for a payment-gated transfer-history
// server. It runs the full handshake: request, read the 402 challenge, and
// retry with the supplied proof.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/chainpass/chainpass"
	"github.com/chainpass/chainpass/client"
)

func main() {
	var (
		serverURL = flag.String("url", "http://localhost:8080", "server base URL")
		address   = flag.String("address", "", "filter: transfers received by this address")
		from      = flag.String("from", "", "filter: transfers sent from this address")
		to        = flag.String("to", "", "filter: transfers received by this address")
		maxCount  = flag.Int("max", 0, "page size (server default when 0)")
		pageKey   = flag.String("page-key", "", "continuation token from a previous page")
		proof     = flag.String("proof", "", "payment transaction hash")
		demo      = flag.Bool("demo", false, "use the development bypass token as proof")
		timeout   = flag.Duration("timeout", 30*time.Second, "request timeout")
	)
	flag.Parse()

	if *demo {
		*proof = chainpass.BypassToken
	}
	if *proof == "" {
		fmt.Fprintln(os.Stderr, "either -proof or -demo is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	target, err := buildURL(*serverURL, *address, *from, *to, *maxCount, *pageKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	c := client.New(client.StaticProof(*proof))
	resp, err := c.Get(ctx, target)
	if err != nil {
		exitWithError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read response:", err)
		os.Exit(1)
	}
	fmt.Println(indented(body))
}

func buildURL(base, address, from, to string, maxCount int, pageKey string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	u = u.JoinPath("/v1/transfers")

	q := u.Query()
	if address != "" {
		q.Set("address", address)
	}
	if from != "" {
		q.Set("fromAddress", from)
	}
	if to != "" {
		q.Set("toAddress", to)
	}
	if maxCount > 0 {
		q.Set("maxCount", fmt.Sprint(maxCount))
	}
	if pageKey != "" {
		q.Set("pageKey", pageKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// exitWithError renders rejections distinctly by reason so a user can tell
// "wait and retry" from "your payment was wrong".
func exitWithError(err error) {
	var rej *client.RejectionError
	if errors.As(err, &rej) {
		switch {
		case rej.Retryable():
			fmt.Fprintf(os.Stderr, "not admitted yet (%s): %s\n", rej.Code, rej.Message)
			fmt.Fprintln(os.Stderr, "the same proof may succeed shortly; retry with backoff")
		default:
			fmt.Fprintf(os.Stderr, "payment refused (%s", rej.Code)
			if rej.Status != "" {
				fmt.Fprintf(os.Stderr, ", %s", rej.Status)
			}
			fmt.Fprintf(os.Stderr, "): %s\n", rej.Message)
		}
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func indented(body []byte) string {
	var buf map[string]interface{}
	if err := json.Unmarshal(body, &buf); err != nil {
		return string(body)
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return string(body)
	}
	return string(out)
}
