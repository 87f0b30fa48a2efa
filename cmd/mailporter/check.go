package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/satish603/MailPorter/internal/app"
	"github.com/satish603/MailPorter/internal/config"
	"github.com/satish603/MailPorter/internal/email"
	"github.com/satish603/MailPorter/internal/util"
)

func newCheckCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Valida la config y los templates y muestra el registry (secretos enmascarados)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			return checkConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func checkConfig(out io.Writer, cfg *config.Config) error {
	registry, err := email.NewRegistry(app.IdentityTable(cfg))
	if err != nil {
		return err
	}
	templates, err := email.LoadTemplates(cfg.Templates.Dir)
	if err != nil {
		return err
	}
	// falla igual que el arranque si falta un template
	if _, err := app.NewDispatcher(cfg, registry, templates, nil, nil); err != nil {
		return err
	}

	senders := email.NewSenderResolver(app.SenderRules(cfg))
	ids := registry.Identities()
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Provider != ids[j].Provider {
			return ids[i].Provider < ids[j].Provider
		}
		return ids[i].Brand < ids[j].Brand
	})

	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tBRAND\tHOST\tUSER\tPASSWORD\tFROM\tBCC\tTEMPLATE")
	for _, id := range ids {
		from := senders.Derive(id)
		fromStr := from.Address
		if from.Name != "" {
			fromStr = fmt.Sprintf("%s <%s>", from.Name, from.Address)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s:%d\t%s\t%s\t%s\t%s\t%s\n",
			id.Provider, id.Brand, id.Host, id.Port,
			id.Username, util.MaskSecret(id.Password),
			fromStr, strings.Join(id.BCC, ","), id.Template,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nok: %d providers, %d identities, %d templates in %s\n",
		len(registry.Providers()), len(ids), len(templates.Names()), templates.Root())
	return nil
}
