package tmplt

// HtmlPage is the browser front-end. It is rendered with html/template and
// expects .ScheduleURL and .Specialties.
var HtmlPage = `<!DOCTYPE html>
<html lang="es">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Aura · IURYNEX</title>
	<style>
		body { font-family: system-ui, sans-serif; margin: 0; display: flex; height: 100vh; background: #f9fafb; color: #111827; }
		aside { width: 280px; background: white; border-right: 1px solid #e5e7eb; padding: 16px; overflow-y: auto; }
		aside.closed { display: none; }
		main { flex: 1; display: flex; flex-direction: column; min-width: 0; }
		nav { display: flex; gap: 8px; justify-content: center; padding: 12px; }
		button { border: 1px solid #d1d5db; background: white; border-radius: 999px; padding: 8px 18px; cursor: pointer; }
		button.active { background: #2563eb; color: white; border-color: #2563eb; }
		button:disabled { opacity: .5; cursor: not-allowed; }
		.spec { display: block; width: 100%; text-align: left; border-radius: 12px; margin: 6px 0; }
		.spec small { display: block; color: #6b7280; }
		#chat, #live { flex: 1; display: flex; flex-direction: column; padding: 16px; overflow: hidden; }
		#messages { flex: 1; overflow-y: auto; }
		.msg { max-width: 70%; padding: 10px 14px; border-radius: 16px; margin: 8px 0; white-space: pre-wrap; }
		.msg.user { margin-left: auto; background: #2563eb; color: white; }
		.msg.model { background: white; border: 1px solid #e5e7eb; }
		.msg time { display: block; font-size: 10px; opacity: .6; margin-top: 4px; }
		form { display: flex; gap: 8px; }
		form input { flex: 1; padding: 10px; border-radius: 12px; border: 1px solid #d1d5db; }
		#live { align-items: center; justify-content: center; gap: 16px; }
		#liveStatus { font-size: 1.4em; }
		.hidden { display: none !important; }
	</style>
</head>
<body>
	<aside id="sidebar">
		<h2>IURYNEX · Aura</h2>
		<p>Especialidades</p>
		{{range .Specialties}}
		<button class="spec" data-id="{{.ID}}">{{.Icon}} {{.Name}}<small>{{.Description}}</small></button>
		{{end}}
		<hr>
		<button id="reset">Reiniciar chat</button>
		<a href="{{.ScheduleURL}}" target="_blank" rel="noopener"><button>Agendar Cita</button></a>
	</aside>
	<main>
		<nav>
			<button id="toggle">☰</button>
			<button id="tabChat" data-view="CHAT">Chat</button>
			<button id="tabLive" data-view="LIVE">Voz en Vivo 🎙️</button>
		</nav>
		<section id="chat">
			<div id="messages"></div>
			<form id="composer">
				<input id="text" autocomplete="off" placeholder="Escribe tu consulta legal...">
				<button id="send">Enviar</button>
			</form>
		</section>
		<section id="live" class="hidden">
			<div id="liveStatus">IDLE</div>
			<div id="liveError"></div>
			<button id="liveStart">Iniciar conversación</button>
			<button id="liveStop" disabled>Finalizar</button>
		</section>
	</main>
	<script>
		const $ = id => document.getElementById(id);
		const api = (method, path, body) => fetch(path, {
			method,
			headers: body ? {'Content-Type': 'application/json'} : {},
			body: body ? JSON.stringify(body) : undefined,
		}).then(r => r.json());

		let messages = [];
		function renderMessages() {
			const box = $('messages');
			box.innerHTML = '';
			for (const m of messages) {
				const div = document.createElement('div');
				div.className = 'msg ' + m.role;
				div.textContent = m.content;
				const t = document.createElement('time');
				t.textContent = new Date(m.timestamp).toLocaleTimeString([], {hour: '2-digit', minute: '2-digit'});
				div.appendChild(t);
				box.appendChild(div);
			}
			box.scrollTop = box.scrollHeight;
		}
		function addMessage(m) {
			if (!messages.some(x => x.id === m.id)) messages.push(m);
			renderMessages();
		}
		function renderState(s) {
			$('chat').classList.toggle('hidden', s.view !== 'CHAT');
			$('live').classList.toggle('hidden', s.view !== 'LIVE');
			$('tabChat').classList.toggle('active', s.view === 'CHAT');
			$('tabLive').classList.toggle('active', s.view === 'LIVE');
			$('sidebar').classList.toggle('closed', !s.sidebarOpen);
			$('send').disabled = s.busy;
			renderLive(s.live);
		}
		function renderLive(l) {
			$('liveStatus').textContent = l.state === 'ACTIVE' ? l.status : l.state;
			$('liveError').textContent = l.error || '';
			$('liveStart').disabled = l.state !== 'IDLE';
			$('liveStop').disabled = l.state === 'IDLE';
		}

		$('composer').onsubmit = e => {
			e.preventDefault();
			const text = $('text').value;
			if (!text.trim()) return;
			$('text').value = '';
			api('POST', '/api/messages', {text});
		};
		document.querySelectorAll('.spec').forEach(b => b.onclick = () => api('POST', '/api/specialties/' + b.dataset.id));
		document.querySelectorAll('nav [data-view]').forEach(b => b.onclick = () => api('POST', '/api/view/' + b.dataset.view));
		$('toggle').onclick = () => api('POST', '/api/sidebar');
		$('reset').onclick = () => api('POST', '/api/reset');
		$('liveStart').onclick = () => api('POST', '/api/live/start');
		$('liveStop').onclick = () => api('POST', '/api/live/stop');

		api('GET', '/api/messages').then(list => { messages = list; renderMessages(); });

		function connect() {
			const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
			ws.onmessage = e => {
				const ev = JSON.parse(e.data);
				switch (ev.type) {
				case 'state': renderState(ev.data); break;
				case 'live': renderLive(ev.data); break;
				case 'message': addMessage(ev.data); break;
				case 'reset': messages = ev.data; renderMessages(); break;
				}
			};
			ws.onclose = () => setTimeout(connect, 2000);
		}
		connect();
	</script>
</body>
</html>
`
