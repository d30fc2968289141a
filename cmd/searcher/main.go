// Copyright 2025 Poiesic Systems
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


package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/ragsync"
	"github.com/poiesic/ragsync/config"
)

func init() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	cfg, err := config.Load(os.Getenv("RAGSYNC_CONFIG"))
	if err != nil {
		panic(err)
	}
	svc, err := ragsync.Open(cfg)
	if err != nil {
		panic(err)
	}
	defer svc.Close()

	query := "how do I reset my password"
	if len(os.Args) > 1 {
		query = strings.Join(os.Args[1:], " ")
	}

	fmt.Println(svc.BuildContext(context.Background(), query))
}
