package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/sendergate/internal/api"
	"github.com/and161185/sendergate/internal/auth"
)

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globals{out: out}
	g.dial = g.defaultDial
	return rootCmd(g)
}

func rootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Operate the sendergate contact registry and audit log",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.addr, "addr", "localhost:8443", "server addr")
	pf.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	pf.BoolVar(&g.skipVerify, "insecure", false, "skip cert verify (dev)")
	pf.BoolVar(&g.plaintext, "plaintext", false, "connect without TLS")
	pf.StringVar(&g.token, "token", "", "admin bearer token (default $SENDERGATE_TOKEN or the saved token)")
	pf.DurationVar(&g.timeout, "timeout", 30*time.Second, "per-command deadline")

	root.AddCommand(
		versionCmd(g),
		tokenCmd(g),
		checkCmd(g),
		contactsCmd(g),
		auditCmd(g),
		deadLettersCmd(g),
	)
	return root
}

func versionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(g.out, "gatectl %s (%s)\n", version, buildDate)
			return err
		},
	}
}

func tokenCmd(g *globals) *cobra.Command {
	var (
		secret, subject, channel string
		ttl                      time.Duration
		save                     bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token with the server's signing secret",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_JWT_SECRET")
			}
			if secret == "" {
				return errors.New("need --secret or AUTH_JWT_SECRET")
			}
			tok, exp, err := auth.Issue([]byte(secret), subject, channel, ttl, time.Now())
			if err != nil {
				return err
			}
			if save {
				if err := saveToken(tok, exp); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(g.out, tok)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&secret, "secret", "", "HS256 signing secret (default $AUTH_JWT_SECRET)")
	f.StringVar(&subject, "subject", "root", "token subject: the root subject or a sovereign sender id")
	f.StringVar(&channel, "channel", "", "channel of the sovereign contact")
	f.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	f.BoolVar(&save, "save", false, "store the token for later commands")
	return cmd
}

func checkCmd(g *globals) *cobra.Command {
	var req api.CheckRequest
	var meta string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a sender the way the agent would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if meta != "" {
				if !json.Valid([]byte(meta)) {
					return errors.New("--metadata must be valid JSON")
				}
				req.Metadata = json.RawMessage(meta)
			}
			cl, done, err := g.client(false)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			resp, err := cl.Check(ctx, &req)
			if err != nil {
				return err
			}
			return g.printJSON(resp)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.SenderID, "sender", "", "sender id")
	f.StringVar(&req.Channel, "channel", "", "channel")
	f.StringVar(&req.MessagePreview, "preview", "", "message preview")
	f.StringVar(&meta, "metadata", "", "metadata JSON object")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func contactsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "contacts", Short: "Manage the contact registry"}
	cmd.AddCommand(contactsAddCmd(g), contactsUpdateCmd(g), contactsRemoveCmd(g), contactsListCmd(g))
	return cmd
}

func contactsAddCmd(g *globals) *cobra.Command {
	var req api.AddContactRequest
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a contact (omit --channel for a global record)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, done, err := g.client(true)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			resp, err := cl.AddContact(ctx, &req)
			if err != nil {
				return err
			}
			return g.printJSON(resp.Contact)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.SenderID, "sender", "", "sender id")
	f.StringVar(&req.Channel, "channel", "", "channel (empty = global)")
	f.StringVar(&req.TrustLevel, "trust", "", "sovereign | trusted | limited | blocked")
	f.StringVar(&req.Name, "name", "", "display name")
	f.StringVar(&req.Notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("sender")
	_ = cmd.MarkFlagRequired("trust")
	return cmd
}

func contactsUpdateCmd(g *globals) *cobra.Command {
	var (
		req                api.UpdateContactRequest
		trust, name, notes string
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change the trust level, name or notes of the contact at the exact scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("trust") {
				req.TrustLevel = &trust
			}
			if f.Changed("name") {
				req.Name = &name
			}
			if f.Changed("notes") {
				req.Notes = &notes
			}
			if req.TrustLevel == nil && req.Name == nil && req.Notes == nil {
				return errors.New("nothing to update: set --trust, --name or --notes")
			}
			cl, done, err := g.client(true)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			resp, err := cl.UpdateContact(ctx, &req)
			if err != nil {
				return err
			}
			return g.printJSON(resp.Contact)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.SenderID, "sender", "", "sender id")
	f.StringVar(&req.Channel, "channel", "", "channel (empty = global)")
	f.StringVar(&trust, "trust", "", "new trust level")
	f.StringVar(&name, "name", "", "new display name")
	f.StringVar(&notes, "notes", "", "new notes")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func contactsRemoveCmd(g *globals) *cobra.Command {
	var req api.RemoveContactRequest
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the contact at the exact scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, done, err := g.client(true)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			if _, err := cl.RemoveContact(ctx, &req); err != nil {
				return err
			}
			_, err = fmt.Fprintln(g.out, "ok")
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.SenderID, "sender", "", "sender id")
	f.StringVar(&req.Channel, "channel", "", "channel (empty = global)")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func contactsListCmd(g *globals) *cobra.Command {
	var req api.ListContactsRequest
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, done, err := g.client(true)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			resp, err := cl.ListContacts(ctx, &req)
			if err != nil {
				return err
			}
			return g.printJSON(resp.Contacts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.TrustLevel, "trust", "", "only this trust level")
	f.StringVar(&req.Channel, "channel", "", "records that apply on this channel")
	f.IntVar(&req.Limit, "limit", 0, "page size")
	f.IntVar(&req.Offset, "offset", 0, "page offset")
	return cmd
}

func auditCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	cmd.AddCommand(auditLogsCmd(g), auditStatsCmd(g))
	return cmd
}

// parseSince accepts RFC3339 or a duration back from now ("24h").
func parseSince(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("bad time %q: want RFC3339 or a duration like 24h", s)
	}
	t := now.Add(-d)
	return &t, nil
}

func auditLogsCmd(g *globals) *cobra.Command {
	var (
		req          api.ListAuditLogsRequest
		since, until string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			var err error
			if req.Since, err = parseSince(since, now); err != nil {
				return err
			}
			if req.Until, err = parseSince(until, now); err != nil {
				return err
			}
			cl, done, err := g.client(true)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			resp, err := cl.ListAuditLogs(ctx, &req)
			if err != nil {
				return err
			}
			return g.printJSON(resp.Entries)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.SenderID, "sender", "", "sender id")
	f.StringVar(&req.Channel, "channel", "", "channel")
	f.StringVar(&req.Action, "action", "", "allowed | blocked | limited | contact_added | contact_updated | contact_removed")
	f.StringVar(&since, "since", "", "RFC3339 time or duration back from now")
	f.StringVar(&until, "until", "", "RFC3339 time or duration back from now")
	f.IntVar(&req.Limit, "limit", 0, "page size")
	f.IntVar(&req.Offset, "offset", 0, "page offset")
	return cmd
}

func auditStatsCmd(g *globals) *cobra.Command {
	var req api.AuditStatsRequest
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit counts per action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, done, err := g.client(true)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			resp, err := cl.AuditStats(ctx, &req)
			if err != nil {
				return err
			}
			return g.printJSON(resp)
		},
	}
	cmd.Flags().BoolVar(&req.Fresh, "fresh", false, "bypass the cached aggregate")
	return cmd
}

func deadLettersCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "deadletters", Short: "Inspect and requeue failed side-effect tasks"}

	var list api.ListDeadLettersRequest
	ls := &cobra.Command{
		Use:   "list",
		Short: "List dead tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, done, err := g.client(true)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			resp, err := cl.ListDeadLetters(ctx, &list)
			if err != nil {
				return err
			}
			return g.printJSON(resp.Tasks)
		},
	}
	ls.Flags().IntVar(&list.Limit, "limit", 0, "page size")
	ls.Flags().IntVar(&list.Offset, "offset", 0, "page offset")

	rq := &cobra.Command{
		Use:   "requeue <task-id>",
		Short: "Give a dead task a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, done, err := g.client(true)
			if err != nil {
				return err
			}
			defer done()
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			if _, err := cl.RequeueDeadLetter(ctx, &api.RequeueDeadLetterRequest{ID: args[0]}); err != nil {
				return err
			}
			_, err = fmt.Fprintln(g.out, "ok")
			return err
		},
	}

	cmd.AddCommand(ls, rq)
	return cmd
}
