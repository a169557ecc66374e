// Copyright 2021 DocPipe Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main runs an aggregation pipeline over a file of documents.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "go.uber.org/automaxprocs"

	"github.com/docpipe/docpipe/internal/aggregations"
	"github.com/docpipe/docpipe/internal/aggregations/stages"
	"github.com/docpipe/docpipe/internal/fjson"
	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/logging"
	"github.com/docpipe/docpipe/internal/util/must"
)

// The cli struct represents all command-line commands, fields and flags.
// It's used for parsing with kong.
var cli struct {
	Docs     string        `help:"Path to the input documents file, one document per line." required:"" type:"existingfile"`
	Pipeline string        `help:"Path to the pipeline file: an array of stage documents." required:"" type:"existingfile"`
	Explain  bool          `help:"Surface the serialized pipeline instead of documents."`
	MaxTime  time.Duration `help:"Execution deadline."                                    default:"0"`
	Debug    bool          `help:"Enable debug logging."`
}

func main() {
	kong.Parse(&cli)

	level := zapcore.InfoLevel
	if cli.Debug {
		level = zapcore.DebugLevel
	}

	logging.Setup(level, "")
	logger := zap.L()

	if err := run(logger); err != nil {
		logger.Sugar().Fatal(err)
	}
}

// run executes the pipeline and prints the results to stdout.
func run(logger *zap.Logger) error {
	docs, err := readDocuments(cli.Docs)
	if err != nil {
		return err
	}

	stageList, err := readPipeline(cli.Pipeline)
	if err != nil {
		return err
	}

	stageList = append([]aggregations.Stage{stages.NewDocumentsSource(docs)}, stageList...)

	opts := &aggregations.Options{
		Logger:  logger,
		Explain: cli.Explain,
	}

	if cli.MaxTime > 0 {
		maxTime := cli.MaxTime
		opts.MaxTime = &maxTime
	}

	p, err := aggregations.NewPipeline(stageList, opts)
	if err != nil {
		return err
	}

	defer p.Dispose()

	if err = p.Optimize(); err != nil {
		return err
	}

	res, err := p.Run(context.Background())
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	for _, doc := range res {
		b, err := fjson.Marshal(doc)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s\n", b)
	}

	return nil
}

// readDocuments reads one document per line from the given file.
func readDocuments(path string) (*types.Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	docs := types.MakeArray(0)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		doc, err := fjson.UnmarshalDocument(line)
		if err != nil {
			return nil, err
		}

		must.NoError(docs.Append(doc))
	}

	return docs, scanner.Err()
}

// readPipeline reads and parses the pipeline stage array from the given file.
func readPipeline(path string) ([]aggregations.Stage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	v, err := fjson.Unmarshal(b)
	if err != nil {
		return nil, err
	}

	arr, ok := v.(*types.Array)
	if !ok {
		return nil, fmt.Errorf("pipeline must be an array, got %T", v)
	}

	res := make([]aggregations.Stage, 0, arr.Len())

	for i := 0; i < arr.Len(); i++ {
		spec, ok := must.NotFail(arr.Get(i)).(*types.Document)
		if !ok {
			return nil, fmt.Errorf("pipeline stages must be documents")
		}

		s, err := stages.NewStage(spec)
		if err != nil {
			return nil, err
		}

		res = append(res, s)
	}

	return res, nil
}
