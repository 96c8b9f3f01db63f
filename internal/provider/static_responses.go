package provider

// Canned responses for the static provider built via FromEnv: a
// contract answered to every JSON-format request, and a code response
// that repeats for any repair calls. JSON routing means the pair works
// whether a session starts from a prompt or from a supplied contract.

const staticContractResponse = "```json\n" + `{
  "app": {
    "name": "notes-api",
    "version": "0.1.0",
    "description": "A minimal notes service with CRUD over HTTP"
  },
  "entities": [
    {
      "name": "Note",
      "fields": [
        { "name": "title", "type": "String", "annotations": { "required": true } },
        { "name": "content", "type": "Text" },
        { "name": "pinned", "type": "Boolean" }
      ]
    }
  ],
  "api": {
    "version": "v1",
    "prefix": "/api",
    "resources": [
      {
        "name": "notes",
        "entity": "Note",
        "operations": ["list", "get", "create", "update", "delete"]
      }
    ]
  },
  "instructions": [
    { "target": "api", "priority": "must", "text": "Keep all state in memory; no database." },
    { "target": "tests", "priority": "should", "text": "Cover every resource operation with a supertest round trip." }
  ],
  "techStack": {
    "framework": "express",
    "language": "javascript",
    "runtime": "node",
    "port": 3000
  },
  "assertions": [
    {
      "id": "api-entry",
      "check": { "type": "file_exists", "path": "api/server.js" },
      "severity": "error",
      "message": "the API entry point must exist"
    },
    {
      "id": "manifest",
      "check": { "type": "file_exists", "path": "package.json" },
      "severity": "error",
      "message": "the package manifest must exist"
    },
    {
      "id": "uses-express",
      "check": { "type": "file_contains", "path": "package.json", "pattern": "express" },
      "severity": "warning",
      "message": "the manifest should declare express"
    }
  ],
  "acceptance": { "testsMustPass": true }
}` + "\n```\n"

// staticCodeResponse assembles the scripted application sources as a
// model-style answer: prose around fenced blocks, each block carrying a
// path comment.
func staticCodeResponse() string {
	blocks := []struct {
		lang, path, body string
	}{
		{"json", "package.json", staticPackageJSON},
		{"js", "api/server.js", staticServerJS},
		{"js", "api/routes/notes.js", staticRoutesJS},
		{"js", "api/store.js", staticStoreJS},
		{"js", "tests/notes.test.js", staticTestsJS},
		{"markdown", "README.md", staticReadme},
	}

	var b []byte
	b = append(b, "Here is the complete application.\n\n"...)
	for _, blk := range blocks {
		b = append(b, "```"...)
		b = append(b, blk.lang...)
		b = append(b, '\n')
		b = append(b, "// path: "...)
		b = append(b, blk.path...)
		b = append(b, '\n')
		b = append(b, blk.body...)
		b = append(b, "\n```\n\n"...)
	}
	b = append(b, "Run npm install, then npm test.\n"...)
	return string(b)
}

const staticPackageJSON = `{
  "name": "notes-api",
  "version": "0.1.0",
  "description": "A minimal notes service with CRUD over HTTP",
  "main": "api/server.js",
  "scripts": {
    "start": "node api/server.js",
    "test": "jest --runInBand"
  },
  "dependencies": {
    "express": "^4.19.0"
  },
  "devDependencies": {
    "jest": "^29.7.0",
    "supertest": "^7.0.0"
  }
}`

const staticServerJS = `const express = require('express');
const notesRouter = require('./routes/notes');

const app = express();
app.use(express.json());

app.get('/health', (req, res) => {
  res.json({ status: 'ok' });
});

app.use('/api/notes', notesRouter);

app.use((req, res) => {
  res.status(404).json({ error: 'not found' });
});

app.use((err, req, res, next) => {
  res.status(err.status || 500).json({ error: err.message || 'internal error' });
});

const port = process.env.PORT || 3000;
if (require.main === module) {
  app.listen(port, () => {
    console.log('notes-api listening on port ' + port);
  });
}

module.exports = app;`

const staticRoutesJS = `const express = require('express');
const store = require('../store');

const router = express.Router();

router.get('/', (req, res) => {
  res.json(store.list());
});

router.get('/:id', (req, res) => {
  const note = store.get(req.params.id);
  if (!note) {
    return res.status(404).json({ error: 'note not found' });
  }
  res.json(note);
});

router.post('/', (req, res) => {
  const { title, content, pinned } = req.body || {};
  if (!title || typeof title !== 'string') {
    return res.status(400).json({ error: 'title is required' });
  }
  const note = store.create({ title, content: content || '', pinned: Boolean(pinned) });
  res.status(201).json(note);
});

router.put('/:id', (req, res) => {
  const note = store.update(req.params.id, req.body || {});
  if (!note) {
    return res.status(404).json({ error: 'note not found' });
  }
  res.json(note);
});

router.delete('/:id', (req, res) => {
  if (!store.remove(req.params.id)) {
    return res.status(404).json({ error: 'note not found' });
  }
  res.status(204).end();
});

module.exports = router;`

const staticStoreJS = `const crypto = require('node:crypto');

const notes = new Map();

function list() {
  return Array.from(notes.values());
}

function get(id) {
  return notes.get(id) || null;
}

function create(attrs) {
  const now = new Date().toISOString();
  const note = {
    id: crypto.randomUUID(),
    title: attrs.title,
    content: attrs.content,
    pinned: attrs.pinned,
    createdAt: now,
    updatedAt: now,
  };
  notes.set(note.id, note);
  return note;
}

function update(id, attrs) {
  const note = notes.get(id);
  if (!note) {
    return null;
  }
  if (typeof attrs.title === 'string' && attrs.title) {
    note.title = attrs.title;
  }
  if (typeof attrs.content === 'string') {
    note.content = attrs.content;
  }
  if (typeof attrs.pinned === 'boolean') {
    note.pinned = attrs.pinned;
  }
  note.updatedAt = new Date().toISOString();
  return note;
}

function remove(id) {
  return notes.delete(id);
}

function clear() {
  notes.clear();
}

module.exports = { list, get, create, update, remove, clear };`

const staticTestsJS = `const request = require('supertest');
const app = require('../api/server');
const store = require('../api/store');

beforeEach(() => {
  store.clear();
});

describe('notes', () => {
  test('starts empty', async () => {
    const res = await request(app).get('/api/notes');
    expect(res.status).toBe(200);
    expect(res.body).toEqual([]);
  });

  test('creates and fetches a note', async () => {
    const created = await request(app)
      .post('/api/notes')
      .send({ title: 'first', content: 'hello' });
    expect(created.status).toBe(201);
    expect(created.body.id).toBeDefined();

    const fetched = await request(app).get('/api/notes/' + created.body.id);
    expect(fetched.status).toBe(200);
    expect(fetched.body.title).toBe('first');
  });

  test('rejects a note without a title', async () => {
    const res = await request(app).post('/api/notes').send({ content: 'no title' });
    expect(res.status).toBe(400);
  });

  test('updates a note', async () => {
    const created = await request(app).post('/api/notes').send({ title: 'draft' });
    const updated = await request(app)
      .put('/api/notes/' + created.body.id)
      .send({ title: 'final', pinned: true });
    expect(updated.status).toBe(200);
    expect(updated.body.title).toBe('final');
    expect(updated.body.pinned).toBe(true);
  });

  test('deletes a note', async () => {
    const created = await request(app).post('/api/notes').send({ title: 'gone soon' });
    const deleted = await request(app).delete('/api/notes/' + created.body.id);
    expect(deleted.status).toBe(204);

    const fetched = await request(app).get('/api/notes/' + created.body.id);
    expect(fetched.status).toBe(404);
  });

  test('404s for an unknown id', async () => {
    const res = await request(app).get('/api/notes/does-not-exist');
    expect(res.status).toBe(404);
  });
});`

const staticReadme = `# notes-api

A minimal notes service with CRUD over HTTP, kept entirely in memory.

## Endpoints

- GET /api/notes
- GET /api/notes/:id
- POST /api/notes
- PUT /api/notes/:id
- DELETE /api/notes/:id
- GET /health

## Running

    npm install
    npm start

## Testing

    npm test`
