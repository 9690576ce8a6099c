// Command http-auth-get performs a digest-authenticated request against a
// URL, optionally wirelogging the raw HTTP exchange.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"

	"github.com/jpfielding/gowirelog/wirelog"

	"github.com/scottlamb/http-auth/pkg/digest"
)

func main() {
	username := flag.String("username", "", "the digest username")
	password := flag.String("password", "", "the digest password")
	url := flag.String("url", "", "the url to request")
	method := flag.String("method", "GET", "the http method")
	body := flag.String("body", "", "the request body, if any")
	wlog := flag.String("wirelog", "", "the log file to see raw http")
	flag.Parse()

	transport := digest.DefaultHTTPTransport()
	if *wlog != "" {
		if _, err := wirelog.LogToFile(transport, *wlog, true, false); err != nil {
			fmt.Fprintln(os.Stderr, "wirelog:", err)
			os.Exit(1)
		}
	}

	dt := digest.NewTransport(*username, *password, transport)
	client, err := dt.NewHTTPClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	client.Jar, _ = cookiejar.New(nil)

	req, err := http.NewRequest(*method, *url, strings.NewReader(*body))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Fprintln(os.Stderr, resp.Status)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
