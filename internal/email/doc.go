// Package email resuelve (provider, brand) a una identidad SMTP, renderiza el
// template HTML del brand y releva el formulario de contacto por SMTP.
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                      HTTP controller                         │
//	└──────────────────────────────┬───────────────────────────────┘
//	                               │ Dispatch(ctx, provider, sub)
//	                               ▼
//	┌──────────────────────────────────────────────────────────────┐
//	│ Dispatcher                                                   │
//	│   Registry.Resolve       provider → brand → Identity          │
//	│   SenderResolver.Derive  Identity → visible From              │
//	│   ContextBuilder.Build   Submission → RenderContext, subject  │
//	│   Templates.Render       template name + RenderContext → HTML │
//	│   DialFunc               Identity → SMTP session (go-mail)    │
//	└──────────────────────────────────────────────────────────────┘
//
// Toda falla vuelve como Result; la capa HTTP la traduce una sola vez.
package email
