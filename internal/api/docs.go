package api

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>Chart Overlay API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <a href="/docs/events" style="
    position: fixed;
    top: 12px;
    right: 16px;
    z-index: 9999;
    background: #161b22;
    border: 1px solid #30363d;
    border-radius: 6px;
    color: #58a6ff;
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
    font-size: 12px;
    padding: 5px 12px;
    text-decoration: none;
  ">Event Stream Docs</a>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`

const eventsDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Stream - Chart Overlay API</title>
  <style>
    body {
      margin: 0 auto;
      max-width: 860px;
      padding: 24px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border-bottom: 1px solid #30363d; padding: 6px 10px; text-align: left; vertical-align: top; }
    th { color: #8b949e; font-weight: 600; }
  </style>
</head>
<body>
  <p><a href="/docs">&larr; REST API</a></p>
  <h1>Event Stream</h1>
  <p><code>GET /api/v1/events</code> is a Server-Sent Events stream. Each event carries the feed name in
  <code>event:</code>, a sequence number in <code>id:</code> and a JSON envelope
  <code>{"chart": "...", "data": ...}</code> in <code>data:</code>. Idle streams receive a
  <code>: keep-alive</code> comment every 15 seconds.</p>

  <h2>Filtering</h2>
  <p>Pass <code>?feeds=undo,drawings</code> to receive only some feeds. Without the parameter every feed is sent.</p>

  <h2>Feeds</h2>
  <table>
    <tr><th>feed</th><th>data</th></tr>
    <tr><td><code>undo</code></td><td><code>{"undo": 2, "redo": 0, "can_undo": true, "can_redo": false}</code>, sent on subscribe and after every history change.</td></tr>
    <tr><td><code>drawings</code></td><td>Drawing-set changes: <code>{"type": "added", "symbol": "DSEBD:GP", "drawing_id": "..."}</code>. Types are <code>symbol</code>, <code>added</code>, <code>updated</code>, <code>removed</code>, <code>cleared</code> and <code>loaded</code>.</td></tr>
    <tr><td><code>projection</code></td><td>Projection pass summaries with <code>reason</code>, <code>projected</code>, <code>culled</code>, <code>failed</code> counts. Passes that changed nothing are not sent.</td></tr>
  </table>

  <h2>Example</h2>
  <pre>curl -N 'http://127.0.0.1:8190/api/v1/events?feeds=undo'

: connected

id: 1
event: undo
data: {"chart":"main","data":{"undo":0,"redo":0,"can_undo":false,"can_redo":false}}</pre>

  <p>Slow clients are not waited for: when a client's buffer is full its events are dropped.</p>
</body>
</html>`
