package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/bluelock/internal/status"
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
	"phaseOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"signal": func(p *int) string {
		if p == nil {
			return "n/a"
		}
		return fmt.Sprintf("%d dBm", *p)
	},
	"durationMs": func(ms int64) string {
		return (time.Duration(ms) * time.Millisecond).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Bluelock</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.IN_RANGE { color: green; font-weight: bold; }
.OUT_OF_RANGE { color: #c00; font-weight: bold; }
.UNKNOWN { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
button { font-family: monospace; margin-right: 4px; }
</style>
</head>
<body>
<h1>Bluelock<span id="live-dot" class="live-dot" title="connecting"></span></h1>

<h2>Presence</h2>
<table>
<tr><th>Monitoring</th><td id="lifecycle">{{.Monitor.Lifecycle}}</td></tr>
<tr><th>Target</th><td id="target">{{if .Monitor.TargetID}}{{.Monitor.TargetID}}{{if .TargetName}} ({{.TargetName}}){{end}}{{else}}none{{end}}</td></tr>
<tr><th>Phase</th><td id="phase" class="{{phaseOrUnknown (printf "%s" .Monitor.Phase)}}">{{phaseOrUnknown (printf "%s" .Monitor.Phase)}}</td></tr>
<tr><th>Signal</th><td id="signal">{{signal .Monitor.LastSignal}}</td></tr>
<tr><th>Misses / Hits</th><td id="streak">{{.Monitor.ConsecutiveMisses}} / {{.Monitor.ConsecutiveHits}}</td></tr>
<tr><th>Last check</th><td id="last-check">{{if .Monitor.LastTickText}}{{.Monitor.LastTickText}}{{else}}never{{end}}</td></tr>
{{if .Monitor.LastError}}<tr><th>Last error</th><td>{{.Monitor.LastError}}</td></tr>{{end}}
</table>

<p>
<button onclick="api('/api/stop')">Stop</button>
<button onclick="api('/api/lock')">Lock now</button>
<button onclick="api('/api/target', null, 'DELETE')">Forget device</button>
<button onclick="loadDevices()">Devices</button>
</p>
<table id="devices"></table>

{{if .LastTransition}}
<h2>Last Transition</h2>
<table>
<tr><th>Event</th><td>{{.LastTransition.Event.Type}}</td></tr>
<tr><th>Action</th><td>{{.LastTransition.Event.Action}}</td></tr>
<tr><th>At</th><td>{{.LastTransition.Event.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{if .LastTransition.ActionError}}<tr><th>Action error</th><td>{{.LastTransition.ActionError}}</td></tr>{{end}}
</table>
{{end}}

<h2>Counts</h2>
<table>
<tr><th>Probes</th><td>{{.Monitor.Counts.Probes}}</td></tr>
<tr><th>Hits / Misses</th><td>{{.Monitor.Counts.Hits}} / {{.Monitor.Counts.Misses}}</td></tr>
<tr><th>Probe errors</th><td>{{.Monitor.Counts.ProbeErrors}}</td></tr>
<tr><th>Locks / Wakes</th><td>{{.Monitor.Counts.OutOfRange}} / {{.Monitor.Counts.InRange}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{durationMs .Config.PollMs}}</td></tr>
<tr><th>Thresholds</th><td>{{.Config.MissThreshold}} misses / {{.Config.HitThreshold}} hits</td></tr>
<tr><th>Lock / Wake</th><td>{{if .Config.LockEnabled}}on{{else}}off{{end}} / {{if .Config.WakeEnabled}}on{{else}}off{{end}}</td></tr>
<tr><th>Probe</th><td>{{.Config.Probe}}</td></tr>
<tr><th>Actions</th><td>{{.Config.Actions}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{durationMs .Config.HeartbeatMs}}{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/api/history">History</a></p>

<script>
(function() {
  var dot = document.getElementById("live-dot");
  function text(id, v) { document.getElementById(id).textContent = v; }

  function render(s) {
    text("lifecycle", s.lifecycle);
    text("target", s.target.id ? s.target.id + (s.target.name ? " (" + s.target.name + ")" : "") : "none");
    var ph = document.getElementById("phase");
    ph.textContent = s.phase;
    ph.className = s.phase;
    text("signal", s.signal_dbm === null ? "n/a" : s.signal_dbm + " dBm");
    text("streak", s.consecutive_misses + " / " + s.consecutive_hits);
    text("last-check", s.last_check || "never");
  }

  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onopen = function() { dot.className = "live-dot ok"; dot.title = "live"; };
    ws.onclose = function() { dot.className = "live-dot err"; dot.title = "offline"; setTimeout(connect, 5000); };
    ws.onmessage = function(m) {
      try { render(JSON.parse(m.data).status); } catch (e) {}
    };
  }
  connect();

  window.api = function(path, body, method) {
    return fetch(path, {
      method: method || "POST",
      headers: { "Content-Type": "application/json" },
      body: body ? JSON.stringify(body) : "{}"
    }).then(function(r) { return r.json(); }).then(function(j) {
      if (!j.ok) { alert(j.error); }
    });
  };

  window.loadDevices = function() {
    fetch("/api/devices").then(function(r) { return r.json(); }).then(function(j) {
      var t = document.getElementById("devices");
      t.innerHTML = "";
      (j.devices || []).forEach(function(d) {
        var tr = document.createElement("tr");
        var th = document.createElement("th");
        th.textContent = d.name + " [" + d.kind + "]";
        var td = document.createElement("td");
        var b = document.createElement("button");
        b.textContent = "Monitor " + d.address;
        b.onclick = function() { api("/api/start", { target_id: d.address, name: d.name }); };
        td.appendChild(b);
        tr.appendChild(th);
        tr.appendChild(td);
        t.appendChild(tr);
      });
    });
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
