package memo

import (
	"context"
	"sort"

	"github.com/starford/memo/internal/models"
	"github.com/starford/memo/internal/naming"
)

// Report lists where the two substrates disagree.
type Report struct {
	// Orphans are content files with no index record.
	Orphans []string
	// Broken are records whose file is missing.
	Broken []models.Record
}

// Clean reports whether nothing is out of place.
func (rep Report) Clean() bool {
	return len(rep.Orphans) == 0 && len(rep.Broken) == 0
}

// Audit compares the documents directory with the index. It changes nothing.
func (r *Repository) Audit(_ context.Context) (Report, error) {
	rep := Report{Orphans: []string{}, Broken: []models.Record{}}

	if !r.store.Exists(r.cfg.Dir) {
		recs, err := r.db.List()
		if err != nil {
			return Report{}, err
		}
		rep.Broken = append(rep.Broken, recs...)
		sortByID(rep.Broken)
		return rep, nil
	}

	files, err := r.store.List(r.cfg.Dir, "*"+naming.Ext)
	if err != nil {
		return Report{}, err
	}
	paths, err := r.db.AllPaths()
	if err != nil {
		return Report{}, err
	}
	for _, f := range files {
		if _, ok := paths[f]; !ok {
			rep.Orphans = append(rep.Orphans, f)
		}
	}

	recs, err := r.db.List()
	if err != nil {
		return Report{}, err
	}
	for _, rec := range recs {
		if !r.store.Exists(rec.FilePath) {
			rep.Broken = append(rep.Broken, rec)
		}
	}
	sortByID(rep.Broken)
	return rep, nil
}

func sortByID(recs []models.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
