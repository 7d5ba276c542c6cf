package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/engineerr"
	"github.com/svsgo/engine/pkg/storage"
)

// writeManifest stages the "config/manifest" component (kind, dim,
// metric, storage kind) as plain key=value lines, plus one
// "data/<label>" component per vector, each a little-endian id
// followed by its float32 embedding, per spec.md §6's persisted
// archive layout ("config/, graph/, data/ subdirectories ... typed
// binary payloads").
func writeManifest(archive *storage.Archive, idx *Index, vecs []core.Vector) error {
	manifest := fmt.Sprintf("kind=%d\ndim=%d\nmetric=%d\nstorage=%s\ncount=%d\n",
		int(idx.kind), idx.dim, int(idx.metric), string(idx.storage), len(vecs))
	if err := archive.Put("config/manifest", []byte(manifest)); err != nil {
		return err
	}
	for i, v := range vecs {
		buf := new(bytes.Buffer)
		if err := binary.Write(buf, binary.LittleEndian, uint64(v.ID)); err != nil {
			return engineerr.Wrap(engineerr.RuntimeError, "encoding vector id", err)
		}
		if err := binary.Write(buf, binary.LittleEndian, v.Embedding); err != nil {
			return engineerr.Wrap(engineerr.RuntimeError, "encoding vector embedding", err)
		}
		if err := archive.Put("data/"+strconv.Itoa(i), buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func readManifest(archive *storage.Archive) (kind Kind, metric distance.Metric, storageKind storage.Kind, dim int, err error) {
	raw, err := archive.Get("config/manifest")
	if err != nil {
		return 0, 0, "", 0, err
	}
	fields := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		fields[parts[0]] = parts[1]
	}
	k, kErr := strconv.Atoi(fields["kind"])
	d, dErr := strconv.Atoi(fields["dim"])
	m, mErr := strconv.Atoi(fields["metric"])
	if kErr != nil || dErr != nil || mErr != nil {
		return 0, 0, "", 0, engineerr.New(engineerr.RuntimeError, "malformed archive manifest")
	}
	return Kind(k), distance.Metric(m), storage.Kind(fields["storage"]), d, nil
}

func readVectors(archive *storage.Archive, dim int) ([]core.Vector, error) {
	names, err := archive.Components("data/")
	if err != nil {
		return nil, err
	}
	vecs := make([]core.Vector, 0, len(names))
	for i := range names {
		name := "data/" + strconv.Itoa(i)
		raw, err := archive.Get(name)
		if err != nil {
			return nil, err
		}
		r := bytes.NewReader(raw)
		var id uint64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, engineerr.Wrap(engineerr.RuntimeError, "decoding vector id from "+name, err)
		}
		embedding := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, &embedding); err != nil {
			return nil, engineerr.Wrap(engineerr.RuntimeError, "decoding vector embedding from "+name, err)
		}
		vecs = append(vecs, core.Vector{ID: core.ExternalID(id), Embedding: embedding})
	}
	return vecs, nil
}
