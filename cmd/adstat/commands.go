package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/azkaraz/adstat/api"
	"github.com/azkaraz/adstat/auth"
	apperrors "github.com/azkaraz/adstat/internal/errors"
	"github.com/azkaraz/adstat/miniapp"
	"github.com/azkaraz/adstat/server"
	"github.com/azkaraz/adstat/server/authflowrepo"
	"github.com/azkaraz/adstat/sessions"
	"github.com/azkaraz/adstat/token/jwt"
	"github.com/azkaraz/adstat/users"
)

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprint(w, `adstat CLI
Usage:
  adstat <cmd> [args]

Commands:
  login     [-init-data S | -url U | -mock]   sign in (mini-app data, URL parameters or test user)
  logout                                      forget the stored token
  whoami                                      show the signed-in user
  email     ADDRESS                           set the profile e-mail
  reports                                     list uploaded reports
  upload    [-wait] FILE                      upload an .xlsx/.xls report
  status    ID                                show report processing status
  sheets    connect ID | info | disconnect    manage the Google Sheet link
  link      google | vk                       link a third-party account in the browser
  campaigns                                   list VK Ads campaigns
`)
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		if err := a.session.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "signed out")
		return nil
	case "whoami":
		return a.whoami(ctx)
	case "email":
		return a.email(ctx, args)
	case "reports":
		return a.reports(ctx)
	case "upload":
		return a.upload(ctx, args)
	case "status":
		return a.status(ctx, args)
	case "sheets":
		return a.sheets(ctx, args)
	case "link":
		return a.link(ctx, args)
	case "campaigns":
		return a.campaigns(ctx)
	case "help", "-h", "--help":
		usage(a.out)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	initData := fs.String("init-data", "", "raw Telegram mini-app init data")
	rawURL := fs.String("url", "", "launch URL carrying user, auth_date and hash")
	mock := fs.Bool("mock", false, "sign in as the test user")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var opts []sessions.Option
	if *initData != "" {
		webApp, err := miniapp.ParseInitData(*initData)
		if err != nil {
			webApp = &miniapp.WebApp{InitData: *initData}
		}
		opts = append(opts, sessions.WithHost(miniapp.NewStatic(webApp)))
	}
	if *rawURL != "" {
		u, err := url.Parse(*rawURL)
		if err != nil {
			return fmt.Errorf("%w: bad -url: %v", errUsage, err)
		}
		opts = append(opts, sessions.WithLaunchURL(u))
	}
	a.session = a.newSession(opts...)

	if a.session.Restore(ctx) == sessions.StateAuthenticated && !*mock && *initData == "" && *rawURL == "" {
		fmt.Fprintf(a.out, "already signed in as %s\n", a.session.Snapshot().User.DisplayName())
		return nil
	}

	var (
		u   *users.User
		err error
	)
	if *mock {
		u, err = a.session.ManualLogin(ctx)
	} else {
		u, err = a.session.AutoSignIn(ctx)
	}
	var lerr *auth.LoginError
	if errors.As(err, &lerr) {
		return lerr
	}
	if errors.Is(err, auth.ErrManualLoginRequired) {
		return fmt.Errorf("no Telegram credentials found; pass -init-data or -url, or use -mock for the test user")
	}
	if err != nil {
		return err
	}

	displayAppname(a.out, a.cfg.GetAppName())
	fmt.Fprintf(a.out, "signed in as %s (telegram id %s)\n", u.DisplayName(), u.TelegramID)
	return nil
}

// requireSession restores the stored session for commands that need one.
func (a *app) requireSession(ctx context.Context) (*users.User, error) {
	if a.session.Restore(ctx) == sessions.StateAuthenticated {
		return a.session.Snapshot().User, nil
	}
	u, err := a.session.AutoSignIn(ctx)
	var lerr *auth.LoginError
	if errors.As(err, &lerr) {
		return nil, lerr
	}
	if errors.Is(err, auth.ErrManualLoginRequired) || errors.Is(err, sessions.ErrAlreadyAttempted) {
		return nil, fmt.Errorf("%w: run `adstat login` first", apperrors.ErrNotAuthenticated)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (a *app) whoami(ctx context.Context) error {
	u, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "name\t%s\n", u.DisplayName())
	fmt.Fprintf(tw, "telegram id\t%s\n", u.TelegramID)
	if u.Email != "" {
		fmt.Fprintf(tw, "email\t%s\n", u.Email)
	}
	fmt.Fprintf(tw, "google sheet\t%s\n", yesNo(u.HasGoogleSheet))
	fmt.Fprintf(tw, "google account\t%s\n", yesNo(u.GoogleLinked()))
	fmt.Fprintf(tw, "vk ads\t%s\n", yesNo(u.VKLinked()))
	if claims, err := jwt.Inspect(a.session.Token()); err == nil && claims.Exp != nil {
		fmt.Fprintf(tw, "token expires\t%s\n", claims.Exp.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}

func (a *app) email(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: email ADDRESS", errUsage)
	}
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}
	u, err := a.session.UpdateEmail(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "email set to %s\n", u.Email)
	return nil
}

func (a *app) reports(ctx context.Context) error {
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}
	reports, err := a.client.Reports(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tSIZE\tSTATUS\tCREATED")
	for _, r := range reports {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", r.ID, r.Filename, r.FileSize, r.Status, r.CreatedAt)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	sum := api.Summarize(reports)
	fmt.Fprintf(a.out, "%d reports, %d bytes, %d completed\n", sum.Total, sum.TotalBytes, sum.ByStatus[api.ReportCompleted])
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	wait := fs.Bool("wait", false, "poll until processing finishes")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return fmt.Errorf("%w: upload [-wait] FILE", errUsage)
	}
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}

	res, err := a.client.UploadReportFile(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "uploaded %s as report %d (%s)\n", res.Filename, res.ReportID, res.Status)
	if !*wait {
		return nil
	}
	return a.waitReport(ctx, res.ReportID, 2*time.Second)
}

func (a *app) waitReport(ctx context.Context, id int64, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r, err := a.client.ReportStatus(ctx, id)
		if err != nil {
			return err
		}
		if r.Done() {
			printReport(a.out, r)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *app) status(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: status ID", errUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: report id must be a number", errUsage)
	}
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}
	r, err := a.client.ReportStatus(ctx, id)
	if err != nil {
		return err
	}
	printReport(a.out, r)
	return nil
}

func printReport(w io.Writer, r *api.Report) {
	fmt.Fprintf(w, "report %d %s: %s\n", r.ID, r.Filename, r.Status)
	if r.ErrorMessage != nil && *r.ErrorMessage != "" {
		fmt.Fprintf(w, "  error: %s\n", *r.ErrorMessage)
	}
}

func (a *app) sheets(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: sheets connect ID | info | disconnect", errUsage)
	}
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "connect":
		if len(args) != 2 {
			return fmt.Errorf("%w: sheets connect ID", errUsage)
		}
		res, err := a.client.ConnectSheet(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, res.Message)
	case "info":
		info, err := a.client.SheetInfo(ctx)
		if err != nil {
			return err
		}
		printObject(a.out, info)
	case "disconnect":
		res, err := a.client.DisconnectSheet(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, res.Message)
	default:
		return fmt.Errorf("%w: unknown sheets action %q", errUsage, args[0])
	}
	return nil
}

func (a *app) campaigns(ctx context.Context) error {
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}
	campaigns, err := a.client.VKCampaigns(ctx)
	if err != nil {
		return err
	}
	for _, c := range campaigns {
		printObject(a.out, c)
		fmt.Fprintln(a.out)
	}
	fmt.Fprintf(a.out, "%d campaigns\n", len(campaigns))
	return nil
}

// link runs the loopback callback server until the provider redirects back.
func (a *app) link(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: link google | vk", errUsage)
	}
	if _, err := a.requireSession(ctx); err != nil {
		return err
	}

	srv, err := server.New(a.cfg, a.client, a.session, authflowrepo.NewInMemoryRepo(10*time.Minute))
	if err != nil {
		return err
	}

	var authURL string
	switch authflowrepo.Provider(args[0]) {
	case authflowrepo.ProviderGoogle:
		authURL, err = srv.BeginGoogleLink(ctx)
	case authflowrepo.ProviderVK:
		authURL, err = srv.BeginVKLink()
	default:
		return fmt.Errorf("%w: unknown provider %q", errUsage, args[0])
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx) }()

	fmt.Fprintf(a.out, "open this URL in your browser:\n\n  %s\n\nwaiting for the redirect to http://%s ...\n", authURL, a.cfg.GetCallbackAddr())

	select {
	case res := <-srv.Results():
		if res.Err != nil {
			return fmt.Errorf("link %s: %w", res.Provider, res.Err)
		}
		fmt.Fprintf(a.out, "%s linked\n", res.Provider)
		return nil
	case err := <-serveErr:
		if err == nil {
			err = ctx.Err()
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printObject(w io.Writer, obj map[string]any) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		fmt.Fprintf(tw, "%s\t%v\n", k, obj[k])
	}
	_ = tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
