package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/doorbell/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Doorbell</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.pressed { color: green; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Doorbell</h1>

<h2>Button</h2>
<table>
<tr><th>Level</th><td class="{{if not .Engine.Known}}unknown{{else if .Pressed}}pressed{{else}}idle{{end}}">{{.LevelString}}{{if and .Engine.Known .Pressed}} (pressed){{end}}</td></tr>
<tr><th>Last ring</th><td>{{stamp .LastRing}}{{if .LastRingSource}} ({{.LastRingSource}}){{end}}</td></tr>
<tr><th>Rings</th><td>{{.Engine.Counts.Presses}}</td></tr>
<tr><th>Transitions</th><td>{{.Engine.Counts.Transitions}}</td></tr>
<tr><th>Relay suppressed</th><td>{{.Engine.Counts.Suppressed}}</td></tr>
<tr><th>Burst window</th><td>{{.Engine.Window.Count}} / {{.Config.BurstThreshold}}</td></tr>
</table>

<h2>Notifications</h2>
<table>
<tr><th>Subscribers</th><td>{{.Subscribers}}</td></tr>
<tr><th>Fan-outs</th><td>{{.Notifications.Runs}}</td></tr>
<tr><th>Delivered</th><td>{{.Notifications.Delivered}}</td></tr>
<tr><th>Pruned</th><td>{{.Notifications.Gone}}</td></tr>
<tr><th>Failed</th><td>{{.Notifications.Failed}}</td></tr>
<tr><th>Cooldown</th><td>{{.Config.CooldownMs}}ms ({{.Config.CooldownMode}}), {{.Notifications.Suppressed}} suppressed</td></tr>
</table>

<h2>Connectivity</h2>
<table>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{else}}<tr><th>MQTT</th><td>disabled</td></tr>
{{end}}<tr><th>Store</th><td>{{.Config.Store}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Settle</th><td>{{.Config.SettleMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.Mock}}<tr><th>GPIO</th><td>mock</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.WithError(err).Warn("render status page")
	}
}
