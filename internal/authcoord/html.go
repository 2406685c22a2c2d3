package authcoord

// indexHTML is the page GET / serves: polls /status every 2s (per
// spec.md §4.D) and opportunistically upgrades to the /ws push channel,
// which simply triggers an earlier poll — the 2s interval stays
// authoritative so the page keeps working with the socket blocked by a
// restrictive proxy. Both the polling and the code submission run in
// script; the page does nothing with JS disabled.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Two-factor verification</title>
<style>
body { font-family: sans-serif; max-width: 28rem; margin: 3rem auto; }
#state { font-weight: bold; }
input[type=text] { font-size: 1.5rem; letter-spacing: 0.3rem; width: 8rem; }
</style>
</head>
<body>
<h1>Two-factor verification</h1>
<p>Status: <span id="state">loading...</span></p>
<p id="message"></p>
<form id="submitForm">
  <input type="text" id="code" maxlength="6" pattern="[0-9]{6}" autocomplete="one-time-code">
  <button type="submit">Submit code</button>
</form>
<button id="requestBtn">Request new code</button>

<script>
function poll() {
  fetch('/status').then(r => r.json()).then(s => {
    document.getElementById('state').textContent = s.state;
    document.getElementById('message').textContent = s.message || '';
  }).catch(() => {});
}

document.getElementById('submitForm').addEventListener('submit', function (ev) {
  ev.preventDefault();
  var code = document.getElementById('code').value;
  fetch('/submit', {
    method: 'POST',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify({ code: code }),
  }).then(poll);
});

document.getElementById('requestBtn').addEventListener('click', function () {
  fetch('/request', { method: 'POST' }).then(poll);
});

setInterval(poll, 2000);
poll();

if (window.WebSocket) {
  try {
    var proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
    var ws = new WebSocket(proto + '//' + location.host + '/ws');
    ws.onmessage = poll;
  } catch (e) {
    // Supplementary channel only; the 2s poll above is sufficient alone.
  }
}
</script>
</body>
</html>
`
