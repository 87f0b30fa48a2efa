package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satish603/MailPorter/internal/app"
	"github.com/satish603/MailPorter/internal/email"
	dto "github.com/satish603/MailPorter/internal/http/dto/email"
)

func newSendCmd(cfgPath *string) *cobra.Command {
	var (
		provider string
		req      dto.SendRequest
		services []string
		fields   []string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Despacha un envío con el mismo motor que el endpoint HTTP",
		Example: `  mailporter send --provider hostinger --brand legalvala \
    --name "Asha" --email asha@example.com --message "hola" \
    --service GST --field city_location=Pune`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, appOptions...)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(services) > 0 {
				req.Services = email.ServicesList(services...)
			}
			for _, kv := range fields {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || strings.TrimSpace(k) == "" {
					return fmt.Errorf("--field %q: expected name=value", kv)
				}
				req.Extra.Set(strings.TrimSpace(k), v)
			}
			req.Normalize()
			if err := req.Validate(); err != nil {
				return err
			}

			res := a.Dispatcher.Dispatch(cmd.Context(), provider, req.ToSubmission())
			if !res.OK {
				return errors.New(res.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s/%s, from %s, to %s, id %s)\n",
				res.Message, res.Provider, res.Brand, res.From.Address,
				strings.Join(res.Recipients, ","), res.MessageID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&provider, "provider", "", "Provider SMTP (ej. hostinger)")
	f.StringVar(&req.Brand, "brand", "", "Brand (cae a default si no existe)")
	f.StringVar(&req.Name, "name", "", "Nombre del remitente del formulario")
	f.StringVar(&req.Email, "email", "", "Email del remitente; también destinatario")
	f.StringVar(&req.Message, "message", "", "Mensaje")
	f.StringVar(&req.Mobile, "mobile", "", "Teléfono (opcional)")
	f.StringArrayVar(&services, "service", nil, "Servicio (repetible)")
	f.StringArrayVar(&fields, "field", nil, "Campo extra name=value (repetible)")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}
