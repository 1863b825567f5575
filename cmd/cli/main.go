package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const usage = `usage: pulsewatch-cli <command> [args]

  monitors                 list monitors
  check <monitor-id>       run a check now and print the result
  results <monitor-id>     results of the last 24h
  budget <slo-id>          current error budget
  sweep [-org ID] [-full]  queue an SLO recompute
  ack <alert-id>           acknowledge an alert
  resolve <alert-id>       resolve an alert

API_BASE (default http://localhost:8080) and API_KEY are read from the environment.
`

func main() {
	api := strings.TrimSuffix(os.Getenv("API_BASE"), "/")
	if api == "" {
		api = "http://localhost:8080"
	}
	c := &client{base: api, key: os.Getenv("API_KEY"), http: &http.Client{Timeout: 2 * time.Minute}}

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}
	args := os.Args[2:]
	arg := func() string {
		if len(args) < 1 {
			fmt.Print(usage)
			os.Exit(2)
		}
		return args[0]
	}

	var err error
	switch os.Args[1] {
	case "monitors":
		err = c.do(http.MethodGet, "/api/monitors", nil)
	case "check":
		err = c.do(http.MethodPost, "/api/monitors/"+arg()+"/check", nil)
	case "results":
		err = c.do(http.MethodGet, "/api/monitors/"+arg()+"/results", nil)
	case "budget":
		err = c.do(http.MethodGet, "/api/slos/"+arg()+"/budget", nil)
	case "sweep":
		fs := flag.NewFlagSet("sweep", flag.ExitOnError)
		org := fs.String("org", "", "organization id")
		target := fs.String("slo", "", "slo target id")
		full := fs.Bool("full", false, "also close out the previous period")
		_ = fs.Parse(args)
		err = c.do(http.MethodPost, "/api/slos/sweep", map[string]any{
			"organization_id": *org, "slo_target_id": *target, "full": *full,
		})
	case "ack":
		err = c.do(http.MethodPost, "/api/alerts/"+arg()+"/ack", nil)
	case "resolve":
		err = c.do(http.MethodPost, "/api/alerts/"+arg()+"/resolve", nil)
	default:
		fmt.Print(usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) do(method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, out, "", "  ") == nil {
		out = pretty.Bytes()
	}
	fmt.Println(strings.TrimSpace(string(out)))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("API returned status: %s", resp.Status)
	}
	return nil
}
