package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/siteedge/internal/routing"
	"github.com/keithlinneman/siteedge/internal/xerrors"
)

type decideFlags struct {
	origin         string
	method         string
	cookies        []string
	acceptLanguage string
	follow         bool
}

func newDecideCmd(rf *rootFlags) *cobra.Command {
	df := &decideFlags{}
	cmd := &cobra.Command{
		Use:   "decide URL...",
		Short: "Print the routing decision for each URL",
		Example: `  routecheck decide /contact --cookie lang=ar
  routecheck decide 'https://example.com/en/blog/?utm_source=x' --follow`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := rf.router()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var failed []string
			for _, arg := range args {
				if err := df.run(out, rt, arg); err != nil {
					fmt.Fprintf(out, "  error: %v\n", err)
					failed = append(failed, arg)
				}
			}
			if len(failed) > 0 {
				return xerrors.Newf("%d of %d urls failed: %s", len(failed), len(args), strings.Join(failed, " "))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&df.origin, "origin", "http://localhost", "scheme://host for URLs given as bare paths")
	f.StringVarP(&df.method, "method", "X", http.MethodGet, "request method")
	f.StringArrayVar(&df.cookies, "cookie", nil, "request cookie as name=value (repeatable)")
	f.StringVar(&df.acceptLanguage, "accept-language", "", "Accept-Language request header")
	f.BoolVar(&df.follow, "follow", false, "follow the redirect and fail unless its target passes through")
	return cmd
}

func (df *decideFlags) request(rawURL string, cookies map[string]string) (*http.Request, error) {
	if strings.HasPrefix(rawURL, "/") {
		rawURL = strings.TrimSuffix(df.origin, "/") + rawURL
	}
	req, err := http.NewRequest(df.method, rawURL, nil)
	if err != nil {
		return nil, xerrors.Wrapf(err, "build request for %q", rawURL)
	}
	req.RequestURI = req.URL.RequestURI()
	if df.acceptLanguage != "" {
		req.Header.Set("Accept-Language", df.acceptLanguage)
	}
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req, nil
}

func parseCookies(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, xerrors.Newf("cookie %q is not name=value", p)
		}
		out[name] = value
	}
	return out, nil
}

func (df *decideFlags) run(out io.Writer, rt *routing.Router, rawURL string) error {
	cookies, err := parseCookies(df.cookies)
	if err != nil {
		return err
	}

	target := rawURL
	for hop := 0; ; hop++ {
		req, err := df.request(target, cookies)
		if err != nil {
			return err
		}
		rc, err := routing.NewRequestContext(req)
		if err != nil {
			return xerrors.Wrapf(err, "%s would be answered with 400", target)
		}
		d := rt.Decide(rc)
		printDecision(out, hop, df.method, req.URL.String(), d, locationFor(rt, rc, d))

		if d.Action != routing.Redirect || !df.follow {
			return nil
		}
		// one redirect must always be enough
		if hop > 0 {
			return xerrors.Newf("redirect target %s is not a fixed point", req.URL.String())
		}
		// the browser stores the cookie before it follows the Location
		if d.PersistLocale {
			cookies[rt.Config().Cookie.Name] = d.Locale.String()
		}
		target = locationFor(rt, rc, d)
	}
}

func locationFor(rt *routing.Router, rc routing.RequestContext, d routing.Decision) string {
	origin := rt.Config().CanonicalOrigin
	if origin == "" {
		origin = rc.Origin
	}
	return d.Location(origin)
}

func printDecision(out io.Writer, hop int, method, u string, d routing.Decision, location string) {
	indent := strings.Repeat("  ", hop)
	fmt.Fprintf(out, "%s%s %s\n", indent, method, u)
	fmt.Fprintf(out, "%s  class=%s action=%s", indent, d.Class, d.Action)
	if d.Locale != "" {
		fmt.Fprintf(out, " locale=%s source=%s", d.Locale, d.Source)
	}
	if d.PersistLocale {
		fmt.Fprint(out, " set-cookie")
	}
	fmt.Fprintln(out)
	if d.Action == routing.Redirect {
		fmt.Fprintf(out, "%s  %d Location: %s\n", indent, d.Status, location)
	}
}
