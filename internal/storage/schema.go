/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed schema/report.schema.json
var manifestSchema []byte

var (
	schemaOnce sync.Once
	compiled   *gojsonschema.Schema
	compileErr error
)

// SchemaError lists the manifest schema violations.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("manifest does not conform to schema: %s", strings.Join(e.Problems, "; "))
}

// Schema returns the embedded manifest schema document.
func Schema() []byte { return append([]byte(nil), manifestSchema...) }

// Validate checks a manifest document against the embedded schema.
// Violations are reported as *SchemaError.
func Validate(data []byte) error {
	schemaOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(manifestSchema))
	})
	if compileErr != nil {
		return fmt.Errorf("compile manifest schema: %w", compileErr)
	}
	res, err := compiled.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}
	if res.Valid() {
		return nil
	}
	se := &SchemaError{}
	for _, e := range res.Errors() {
		se.Problems = append(se.Problems, e.String())
	}
	return se
}
