package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"mustody-console/config"
	"mustody-console/core/appbootstrap"
	"mustody-console/core/backend"
	"mustody-console/core/push"
	"mustody-console/core/rbac"
	"mustody-console/core/utils"

	"github.com/skip2/go-qrcode"
)

const usage = `usage: mustodyctl <command> [flags]

commands:
  login           -email -password [-totp]
  logout
  whoami
  menu
  roles
  inbox           [-unread]
  read            <notification id>
  read-all
  push-subscribe  [-yes]
  2fa-setup       [-png file]
  tenant-request  -type -subject
  validate-phone  [-country code] <phone>`

var errUsage = errors.New("invalid usage")

// Console runs one command against the local client state. Commands that touch
// the backend open the same runtime the daemon uses.
type Console struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	LoadConfig func() (*config.AppConfig, error)
}

func Run() {
	c := &Console{In: os.Stdin, Out: os.Stdout, Err: os.Stderr, LoadConfig: config.Load}
	if err := c.Execute(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func (c *Console) Execute(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(c.Err, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "validate-phone":
		return c.validatePhone(rest)
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.withRuntime(ctx, nil, func(rt *appbootstrap.Runtime) error {
			rt.Session.Logout(ctx)
			rt.Inbox.Reset()
			fmt.Fprintln(c.Out, "logged out")
			return nil
		})
	case "whoami":
		return c.withSession(ctx, c.whoami)
	case "menu":
		return c.withSession(ctx, c.menu)
	case "roles":
		return c.withRuntime(ctx, nil, c.roles)
	case "inbox":
		return c.inbox(ctx, rest)
	case "read":
		if len(rest) != 1 {
			fmt.Fprintln(c.Err, "usage: mustodyctl read <notification id>")
			return errUsage
		}
		return c.withSession(ctx, func(rt *appbootstrap.Runtime) error {
			if !rt.Inbox.MarkAsRead(ctx, rest[0]) {
				return fmt.Errorf("notification %s was not marked as read", rest[0])
			}
			fmt.Fprintln(c.Out, "marked as read")
			return nil
		})
	case "read-all":
		return c.withSession(ctx, func(rt *appbootstrap.Runtime) error {
			if !rt.Inbox.MarkAllAsRead(ctx) {
				return errors.New("notifications were not marked as read")
			}
			fmt.Fprintln(c.Out, "all notifications marked as read")
			return nil
		})
	case "push-subscribe":
		return c.pushSubscribe(ctx, rest)
	case "2fa-setup":
		return c.twoFactorSetup(ctx, rest)
	case "tenant-request":
		return c.tenantRequest(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprintln(c.Out, usage)
		return nil
	default:
		fmt.Fprintf(c.Err, "unknown command %q\n\n%s\n", cmd, usage)
		return errUsage
	}
}

func (c *Console) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.Err)
	return fs
}

func (c *Console) withRuntime(ctx context.Context, opts *appbootstrap.Options, fn func(rt *appbootstrap.Runtime) error) error {
	cfg, err := c.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var o appbootstrap.Options
	if opts != nil {
		o = *opts
	}
	rt, err := appbootstrap.InitRuntime(ctx, cfg, utils.NewLoggerTo(c.Err, "warn"), o)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func (c *Console) withSession(ctx context.Context, fn func(rt *appbootstrap.Runtime) error) error {
	return c.withRuntime(ctx, nil, func(rt *appbootstrap.Runtime) error {
		if !rt.Session.Authenticated() {
			return errors.New("not logged in; run mustodyctl login")
		}
		return fn(rt)
	})
}

func (c *Console) validatePhone(args []string) error {
	fs := c.flags("validate-phone")
	country := fs.String("country", "", "expected calling code, e.g. 90")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.Err, "usage: mustodyctl validate-phone [-country code] <phone>")
		return errUsage
	}
	n, err := utils.ValidatePhone(fs.Arg(0), *country)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Out, n)
	return nil
}

func (c *Console) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	totp := fs.String("totp", "", "two-factor code")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return c.withRuntime(ctx, nil, func(rt *appbootstrap.Runtime) error {
		res, err := rt.Backend.Login(ctx, backend.LoginRequest{Email: *email, Password: *password, TOTPCode: *totp})
		if errors.Is(err, backend.ErrTwoFactorCodeRequired) {
			return errors.New("two-factor code required; pass -totp")
		}
		if err != nil {
			return err
		}
		if err := rt.Session.Login(ctx, res.Token, res.User); err != nil {
			return err
		}
		u := rt.Session.User()
		fmt.Fprintf(c.Out, "logged in as %s\n", u.Email)
		return nil
	})
}

func (c *Console) whoami(rt *appbootstrap.Runtime) error {
	u := rt.Session.User()
	tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", u.ID)
	fmt.Fprintf(tw, "name\t%s\n", u.Name)
	fmt.Fprintf(tw, "email\t%s\n", u.Email)
	fmt.Fprintf(tw, "roles\t%s\n", strings.Join(u.EffectiveRoles(), ","))
	fmt.Fprintf(tw, "kyc\t%s\n", orDash(u.KYCStatus))
	fmt.Fprintf(tw, "2fa\t%t\n", u.TwoFactorEnabled)
	return tw.Flush()
}

func (c *Console) menu(rt *appbootstrap.Runtime) error {
	tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
	for _, item := range rt.Session.Menu() {
		fmt.Fprintf(tw, "%s\t%s\n", item.Label, item.Path)
	}
	return tw.Flush()
}

// roles prints the role catalog, marking roles the current user holds. Held
// roles the catalog does not know are listed after it.
func (c *Console) roles(rt *appbootstrap.Runtime) error {
	tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
	for _, r := range rbac.DefaultRoles() {
		mark := " "
		if rt.Session.HasRole(r.Name) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, r.Name, r.Description)
	}
	for _, r := range rt.Session.Snapshot().EffectiveRoles {
		if !rbac.IsKnownRole(r) {
			fmt.Fprintf(tw, "*\t%s\t(unrecognized)\n", r)
		}
	}
	return tw.Flush()
}

func (c *Console) inbox(ctx context.Context, args []string) error {
	fs := c.flags("inbox")
	unreadOnly := fs.Bool("unread", false, "show unread notifications only")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return c.withSession(ctx, func(rt *appbootstrap.Runtime) error {
		if err := rt.Inbox.Fetch(ctx); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
		for _, n := range rt.Inbox.Items() {
			if *unreadOnly && n.IsRead {
				continue
			}
			mark := " "
			if !n.IsRead {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, n.ID, n.Type, n.Title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "%d unread\n", rt.Inbox.UnreadCount())
		return nil
	})
}

func (c *Console) pushSubscribe(ctx context.Context, args []string) error {
	fs := c.flags("push-subscribe")
	yes := fs.Bool("yes", false, "grant push permission without asking")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	opts := &appbootstrap.Options{Prompt: c.permissionPrompt(*yes)}
	return c.withRuntime(ctx, opts, func(rt *appbootstrap.Runtime) error {
		if !rt.Session.Authenticated() {
			return errors.New("not logged in; run mustodyctl login")
		}
		res := rt.Push.Subscribe(ctx)
		switch res.State {
		case push.StateActive:
			fmt.Fprintf(c.Out, "push active endpoint=%s\n", res.Subscription.Endpoint)
			return nil
		case push.StateUnsupported, push.StateDenied:
			fmt.Fprintf(c.Out, "push %s\n", res.State)
			return nil
		default:
			return fmt.Errorf("push subscription failed: %w", res.Err)
		}
	})
}

func (c *Console) permissionPrompt(yes bool) push.PermissionPrompt {
	return func(ctx context.Context) (push.Permission, error) {
		if yes {
			return push.PermissionGranted, nil
		}
		fmt.Fprint(c.Out, "Allow push notifications on this device? [y/N] ")
		line, err := bufio.NewReader(c.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return push.PermissionDefault, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return push.PermissionGranted, nil
		case "n", "no":
			return push.PermissionDenied, nil
		}
		return push.PermissionDefault, nil
	}
}

func (c *Console) twoFactorSetup(ctx context.Context, args []string) error {
	fs := c.flags("2fa-setup")
	pngPath := fs.String("png", "", "also write the QR code to this PNG file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return c.withSession(ctx, func(rt *appbootstrap.Runtime) error {
		setup, err := rt.Backend.SetupTwoFactor(ctx)
		if err != nil {
			return err
		}
		qr, err := renderQR(setup.OTPAuthURL)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.Out, qr)
		fmt.Fprintf(c.Out, "secret: %s\n", setup.Secret)
		if *pngPath != "" {
			if err := qrcode.WriteFile(setup.OTPAuthURL, qrcode.Medium, 256, *pngPath); err != nil {
				return fmt.Errorf("write qr png: %w", err)
			}
			fmt.Fprintf(c.Out, "qr code written to %s\n", *pngPath)
		}
		return nil
	})
}

func renderQR(content string) (string, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qr encode: %w", err)
	}
	return q.ToSmallString(false), nil
}

func (c *Console) tenantRequest(ctx context.Context, args []string) error {
	fs := c.flags("tenant-request")
	reqType := fs.String("type", "", "request type")
	subject := fs.String("subject", "", "request subject")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return c.withSession(ctx, func(rt *appbootstrap.Runtime) error {
		receipt, err := rt.Backend.SubmitTenantRequest(ctx, rt.Session.User(), backend.TenantRequest{Type: *reqType, Subject: *subject})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "request %s %s\n", receipt.ID, receipt.Status)
		return nil
	})
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
