package main

import (
	"context"

	"github.com/grailbio/base/file"
	"github.com/pkg/errors"

	"github.com/grailbio/bogart/pipeline"
	"github.com/grailbio/bogart/readinfo"
	"github.com/grailbio/bogart/report"
)

// writeReportFiles emits the best-edge report and its contained/singleton
// side-streams. When gzipReports is set (the CLI's "-gzip-reports"),
// every stream is wrapped with report.MaybeGzip before writing.
func writeReportFiles(ctx context.Context, mainPath, containedPath, singletonPath string, reads *readinfo.Table, pc *pipeline.Context, gzipReports bool) (err error) {
	mainF, err := file.Create(ctx, mainPath)
	if err != nil {
		return errors.Wrapf(err, "bogart: creating %s", mainPath)
	}
	defer file.CloseAndReport(ctx, mainF, &err)

	containedF, err := file.Create(ctx, containedPath)
	if err != nil {
		return errors.Wrapf(err, "bogart: creating %s", containedPath)
	}
	defer file.CloseAndReport(ctx, containedF, &err)

	singletonF, err := file.Create(ctx, singletonPath)
	if err != nil {
		return errors.Wrapf(err, "bogart: creating %s", singletonPath)
	}
	defer file.CloseAndReport(ctx, singletonF, &err)

	mainW := report.MaybeGzip(mainF.Writer(ctx), gzipReports)
	containedW := report.MaybeGzip(containedF.Writer(ctx), gzipReports)
	singletonW := report.MaybeGzip(singletonF.Writer(ctx), gzipReports)

	if err := report.WriteBestEdges(mainW, containedW, singletonW, reads, pc.BOG, pc.Tigs); err != nil {
		return errors.Wrap(err, "bogart: writing best-edge report")
	}
	if err := mainW.Close(); err != nil {
		return errors.Wrap(err, "bogart: closing best-edge report stream")
	}
	if err := containedW.Close(); err != nil {
		return errors.Wrap(err, "bogart: closing contained-read report stream")
	}
	return errors.Wrap(singletonW.Close(), "bogart: closing singleton report stream")
}

// writePartitionFile emits the offline-partitioning assignment file,
// grouping tigs into partitions of at most maxReadsPerPartition reads.
func writePartitionFile(ctx context.Context, path string, pc *pipeline.Context, gzipReports bool) (err error) {
	const maxReadsPerPartition = 100000

	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "bogart: creating %s", path)
	}
	defer file.CloseAndReport(ctx, f, &err)

	w := report.MaybeGzip(f.Writer(ctx), gzipReports)
	assignments := report.Partition(pc.Tigs, maxReadsPerPartition)
	if err := report.WritePartitions(w, assignments); err != nil {
		return errors.Wrap(err, "bogart: writing partitions")
	}
	return errors.Wrap(w.Close(), "bogart: closing partition file stream")
}
