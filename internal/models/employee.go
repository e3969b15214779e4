// Copyright (c) 2026 John Earle
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

package models

import (
	"strings"
	"time"
)

// IdentityRecord holds the eight identity-card fields. Every field is always
// present; an unknown value is the empty string.
type IdentityRecord struct {
	Name                string `json:"name"`
	FatherOrHusbandName string `json:"fatherOrHusbandName"`
	CNIC                string `json:"cnic"`
	Gender              string `json:"gender"`
	Nationality         string `json:"nationality"`
	DateOfBirth         string `json:"dateOfBirth"`
	DateOfIssue         string `json:"dateOfIssue"`
	DateOfExpiry        string `json:"dateOfExpiry"`
}

// IdentityFields lists the JSON keys of an IdentityRecord in schema order.
var IdentityFields = []string{
	"name",
	"fatherOrHusbandName",
	"cnic",
	"gender",
	"nationality",
	"dateOfBirth",
	"dateOfIssue",
	"dateOfExpiry",
}

// Map returns the record keyed by its JSON field names. All eight keys are
// always set.
func (r IdentityRecord) Map() map[string]string {
	return map[string]string{
		"name":                r.Name,
		"fatherOrHusbandName": r.FatherOrHusbandName,
		"cnic":                r.CNIC,
		"gender":              r.Gender,
		"nationality":         r.Nationality,
		"dateOfBirth":         r.DateOfBirth,
		"dateOfIssue":         r.DateOfIssue,
		"dateOfExpiry":        r.DateOfExpiry,
	}
}

// IdentityFromMap builds a record from a field map; missing keys are empty.
func IdentityFromMap(m map[string]string) IdentityRecord {
	return IdentityRecord{
		Name:                strings.TrimSpace(m["name"]),
		FatherOrHusbandName: strings.TrimSpace(m["fatherOrHusbandName"]),
		CNIC:                strings.TrimSpace(m["cnic"]),
		Gender:              strings.TrimSpace(m["gender"]),
		Nationality:         strings.TrimSpace(m["nationality"]),
		DateOfBirth:         strings.TrimSpace(m["dateOfBirth"]),
		DateOfIssue:         strings.TrimSpace(m["dateOfIssue"]),
		DateOfExpiry:        strings.TrimSpace(m["dateOfExpiry"]),
	}
}

// Overlay returns r with every non-empty field of next applied on top.
// Empty fields in next never erase values already in r.
func (r IdentityRecord) Overlay(next IdentityRecord) IdentityRecord {
	pick := func(cur, n string) string {
		if n != "" {
			return n
		}
		return cur
	}
	return IdentityRecord{
		Name:                pick(r.Name, next.Name),
		FatherOrHusbandName: pick(r.FatherOrHusbandName, next.FatherOrHusbandName),
		CNIC:                pick(r.CNIC, next.CNIC),
		Gender:              pick(r.Gender, next.Gender),
		Nationality:         pick(r.Nationality, next.Nationality),
		DateOfBirth:         pick(r.DateOfBirth, next.DateOfBirth),
		DateOfIssue:         pick(r.DateOfIssue, next.DateOfIssue),
		DateOfExpiry:        pick(r.DateOfExpiry, next.DateOfExpiry),
	}
}

// DocumentKind identifies one of the identity-dependent artifacts.
type DocumentKind string

const (
	DocumentNDA               DocumentKind = "nda"
	DocumentContract          DocumentKind = "contract"
	DocumentSalaryCertificate DocumentKind = "salary_certificate"
)

// DocumentKinds lists the artifact kinds in generation order.
var DocumentKinds = []DocumentKind{
	DocumentNDA,
	DocumentContract,
	DocumentSalaryCertificate,
}

// Documents holds the three independent generated-flag/path pairs.
type Documents struct {
	NDAGenerated               bool   `json:"ndaGenerated"`
	NDAPath                    string `json:"ndaPath"`
	ContractGenerated          bool   `json:"contractGenerated"`
	ContractPath               string `json:"contractPath"`
	SalaryCertificateGenerated bool   `json:"salaryCertificateGenerated"`
	SalaryCertificatePath      string `json:"salaryCertificatePath"`
}

// Path returns the stored path for kind.
func (d Documents) Path(kind DocumentKind) string {
	switch kind {
	case DocumentNDA:
		return d.NDAPath
	case DocumentContract:
		return d.ContractPath
	case DocumentSalaryCertificate:
		return d.SalaryCertificatePath
	}
	return ""
}

// Set records a generated artifact for kind.
func (d *Documents) Set(kind DocumentKind, path string) {
	switch kind {
	case DocumentNDA:
		d.NDAPath, d.NDAGenerated = path, true
	case DocumentContract:
		d.ContractPath, d.ContractGenerated = path, true
	case DocumentSalaryCertificate:
		d.SalaryCertificatePath, d.SalaryCertificateGenerated = path, true
	}
}

// Employee is the persistent record keyed case-insensitively by email.
type Employee struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Owner string `json:"owner"`

	IdentityRecord

	Documents

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Identity returns the identity portion of the record.
func (e *Employee) Identity() IdentityRecord {
	return e.IdentityRecord
}

// HasDocumentPrerequisites reports whether documents may be generated.
func (e *Employee) HasDocumentPrerequisites() bool {
	return strings.TrimSpace(e.Name) != "" && strings.TrimSpace(e.CNIC) != ""
}

// NormalizeEmail lower-cases and trims an address for comparison and keying.
func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
