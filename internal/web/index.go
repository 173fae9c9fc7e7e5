package web

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Iris</title>
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-mid:#4d4d4d; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body { margin:0; padding:2rem; background:var(--bg); color:var(--ink); font-family:'Space Mono','JetBrains Mono',monospace; }
    #app { max-width:1100px; margin:0 auto; background:var(--panel); border:3px solid var(--ink); padding:2rem; box-shadow:12px 12px 0 rgba(0,0,0,.15); }
    header { display:flex; justify-content:space-between; align-items:flex-start; gap:1rem; }
    .eyebrow { font-size:.7rem; text-transform:uppercase; letter-spacing:.2em; margin:0; }
    .status { font-size:.65rem; text-transform:uppercase; border:2px solid var(--ink); padding:.4rem .9rem; background:#fff; }
    .balances { display:grid; grid-template-columns:repeat(auto-fit, minmax(240px, 1fr)); gap:1rem; margin:1.5rem 0; }
    .card { border:3px solid var(--ink); padding:1rem; background:#fff; box-shadow:6px 6px 0 rgba(0,0,0,.12); }
    .card .label { font-size:.6rem; text-transform:uppercase; letter-spacing:.2em; color:var(--ink-mid); }
    .card .value { margin-top:.6rem; font-size:1.4rem; font-weight:700; }
    table { width:100%; border-collapse:collapse; font-size:.75rem; background:#fff; }
    th, td { border-bottom:1px dashed rgba(0,0,0,.2); padding:.4rem; text-align:left; }
    .give { color:#d7263d; }
    .take { color:#1b9aaa; }
  </style>
</head>
<body>
  <div id="app">
    <header>
      <p class="eyebrow">iris watcher</p>
      <div id="status" class="status">Connecting…</div>
    </header>
    <section id="balances" class="balances"></section>
    <table>
      <thead><tr><th>bot</th><th>id</th><th>time</th><th>type</th><th>amount</th><th>balance</th><th>user</th></tr></thead>
      <tbody id="transactions"></tbody>
    </table>
  </div>
<script>
const statusEl = document.getElementById('status');
const rows = document.getElementById('transactions');
const seen = new Set();
const MAX_ROWS = 200;

async function loadBalances(){
  try{
    const res = await fetch('/balance');
    const list = await res.json();
    const root = document.getElementById('balances');
    root.innerHTML = '';
    list.forEach((b) => {
      const card = document.createElement('div');
      card.className = 'card';
      const label = document.createElement('div');
      label.className = 'label';
      label.textContent = b.bot;
      const value = document.createElement('div');
      value.className = 'value';
      value.textContent = b.error ? b.error : b.sweets + ' sweets';
      card.append(label, value);
      root.appendChild(card);
    });
  }catch(err){
    console.error('balance', err);
  }
}

function addRow(tx){
  const key = tx.bot + ':' + tx.entry.id;
  if(seen.has(key)){ return; }
  seen.add(key);
  const tr = document.createElement('tr');
  const cells = [tx.bot, tx.entry.id, new Date(tx.entry.date).toLocaleString(), tx.entry.type, tx.entry.amount, tx.entry.balance, tx.entry.to_user_id];
  cells.forEach((c) => {
    const td = document.createElement('td');
    td.textContent = c;
    tr.appendChild(td);
  });
  tr.className = tx.entry.type;
  rows.insertBefore(tr, rows.firstChild);
  while(rows.children.length > MAX_ROWS){ rows.removeChild(rows.lastChild); }
  loadBalances();
}

function connectSSE(){
  const source = new EventSource('/transactions/stream');
  statusEl.textContent = 'Status: receiving data';
  source.addEventListener('transaction', (event) => {
    try{ addRow(JSON.parse(event.data)); }catch(err){ console.error('payload parse', err); }
  });
  source.addEventListener('error', () => {
    statusEl.textContent = 'Reconnecting…';
    source.close();
    setTimeout(connectSSE, 2000);
  });
}

loadBalances();
connectSSE();
</script>
</body>
</html>`
