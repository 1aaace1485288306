// Package ingest loads marketplace exports into the canonical store.
//
// Scanner walks a data directory and ingests every changed .csv or .json
// export, skipping files whose content hash matches the previous ingest.
// RunIngester accepts crawler run payloads pushed over HTTP. Both normalize
// rows with the normalize package and write one store transaction per file
// or payload through the write coordinator.
package ingest
