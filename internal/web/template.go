package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/photobooth/internal/status"
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Photobooth</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.busy { color: orange; font-weight: bold; }
.gallery { display: flex; flex-wrap: wrap; gap: 8px; }
.gallery a { display: block; border: 1px solid #ddd; }
.gallery img { display: block; width: 160px; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
</style>
</head>
<body>
<h1>Photobooth<span id="live-dot" class="live-dot" title="connecting"></span></h1>

<h2>Session</h2>
<table>
<tr><th>Mode</th><td id="mode" class="{{if ne (printf "%s" .Session.Mode) "IDLE"}}busy{{end}}">{{.Session.Mode}}</td></tr>
<tr><th>Screen</th><td id="view">{{.View}}</td></tr>
<tr><th>Flash</th><td id="flash">{{if .Session.FlashOn}}on{{else}}off{{end}}</td></tr>
<tr><th>Last</th><td id="last">{{if .LastArtifact}}{{.LastArtifact.Kind}} {{.LastArtifact.CreatedAt.UTC.Format "2006-01-02T15:04:05Z"}}{{else}}none{{end}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Photos</th><td id="photos">{{.Session.Counts.Photos}}</td></tr>
<tr><th>Bursts</th><td id="bursts">{{.Session.Counts.Bursts}}</td></tr>
<tr><th>Saved</th><td id="saved">{{.Outputs.Saved}}</td></tr>
<tr><th>Prints</th><td>{{.Outputs.PrintSubmitted}} submitted, {{.Outputs.PrintSkipped}} skipped, {{.Outputs.PrintFailed}} failed</td></tr>
<tr><th>Rejected triggers</th><td>{{.Session.Counts.Rejected}}</td></tr>
<tr><th>Capture errors</th><td>{{.Session.Counts.CaptureErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{if .Config.Broker}} ({{.Config.Broker}}){{end}}</td></tr>
<tr><th>Camera</th><td>{{.Config.Camera}}</td></tr>
<tr><th>Countdown</th><td>{{.Config.CountdownMs}}ms</td></tr>
<tr><th>Burst</th><td>{{.Config.GIFFrames}} frames at {{.Config.GIFFPS}} fps, {{.Config.GIFPauseMs}}ms apart</td></tr>
</table>

<h2>Gallery</h2>
{{if .Entries}}<div class="gallery">
{{range .Entries}}<a href="{{if .Animation}}{{.Animation}}{{else}}{{.Image}}{{end}}" title="{{.Name}}"><img src="{{.Thumb}}" alt="{{.Name}}" loading="lazy"></a>
{{end}}</div>{{else}}<p>No pictures yet.</p>{{end}}

<p><a href="/index.json">JSON</a> | <a href="/gallery.json">Gallery JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var saved = {{.Outputs.Saved}};

  function set(id, v) { document.getElementById(id).textContent = v; }

  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onopen = function() { dot.className = "live-dot ok"; dot.title = "live"; };
    ws.onclose = function() {
      dot.className = "live-dot err"; dot.title = "offline";
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        set("mode", s.mode);
        document.getElementById("mode").className = s.mode === "IDLE" ? "" : "busy";
        set("view", s.view);
        set("flash", s.flash_on ? "on" : "off");
        set("photos", s.counts.photos);
        set("bursts", s.counts.bursts);
        set("saved", s.counts.saved);
        if (s.counts.saved !== saved && s.mode === "IDLE") { location.reload(); }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, entries []Entry) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Entries []Entry
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Entries:  entries,
	}
	return indexTmpl.Execute(w, data)
}
