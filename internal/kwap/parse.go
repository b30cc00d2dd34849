package kwap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Pensioner is the record returned by InquireEmass.
type Pensioner struct {
	Name         string `json:"name"`
	CurrentIDNo  string `json:"currentIdNo"`
	OldIDNo      string `json:"oldIdNo"`
	BirthDate    string `json:"birthDate"`
	Gender       string `json:"gender"`
	RaceCode     string `json:"raceCode"`
	ReligionCode string `json:"religionCode"`
	DeathStatus  string `json:"deathSts"`
	DeceaseDate  string `json:"deseaseDate"`

	ServiceTypeDesc  string `json:"serviceTypeDesc"`
	DeptName         string `json:"deptName"`
	DeptDesc         string `json:"deptDesc"`
	FirstAppointDate string `json:"firstAppointDate"`
	LastDesignation  string `json:"lastDesignation"`
	LastSalary       string `json:"lastSalary"`
	TPTotal          string `json:"tpTotal"`

	PensionAccNo         string `json:"pensionAccNo"`
	FileNo               string `json:"fileNo"`
	PensionDate          string `json:"pensionDate"`
	PaymentStartDate     string `json:"paymentStartDate"`
	PaymentStopDate      string `json:"paymentStopDate"`
	CurrentPaymentMethod string `json:"currentPaymentMethod"`
	RecordStatus         string `json:"recordSts"`
	RetireTypeDesc       string `json:"retireTypeDesc"`
	PensionerType        string `json:"pensionerType"`
	ManagingDeptCode     string `json:"managingDeptCode"`

	Dependants []Dependant `json:"dependents"`
}

type Dependant struct {
	Name             string `json:"name"`
	CurrentIDNo      string `json:"currentIdNo,omitempty"`
	Gender           string `json:"gender,omitempty"`
	RelationshipDesc string `json:"relationShipDesc,omitempty"`
	BirthDate        string `json:"birthDate,omitempty"`
	MarriageDate     string `json:"marriageDate,omitempty"`
	PensionAccNo     string `json:"pensionAccNo,omitempty"`
}

// pensionerFields maps element names to the first-occurrence fields.
func pensionerFields(p *Pensioner) map[string]*string {
	return map[string]*string{
		"Name": &p.Name, "CurrentIdNo": &p.CurrentIDNo, "OldIdNo": &p.OldIDNo,
		"BirthDate": &p.BirthDate, "Gender": &p.Gender, "RaceCode": &p.RaceCode,
		"ReligionCode": &p.ReligionCode, "DeathSts": &p.DeathStatus, "DeseaseDate": &p.DeceaseDate,
		"ServiceTypeDesc": &p.ServiceTypeDesc, "DeptName": &p.DeptName, "DeptDesc": &p.DeptDesc,
		"FirstAppointDate": &p.FirstAppointDate, "LastDesignation": &p.LastDesignation,
		"LastSalary": &p.LastSalary, "TpTotal": &p.TPTotal,
		"PensionAccNo": &p.PensionAccNo, "FileNo": &p.FileNo, "PensionDate": &p.PensionDate,
		"PaymentStartDate": &p.PaymentStartDate, "PaymentStopDate": &p.PaymentStopDate,
		"CurrentPaymentMethod": &p.CurrentPaymentMethod, "RecordSts": &p.RecordStatus,
		"RetireTypeDesc": &p.RetireTypeDesc, "PensionerType": &p.PensionerType,
		"ManagingDeptCode": &p.ManagingDeptCode,
	}
}

// Dependant elements repeat once per dependant and are paired by position.
var dependantTags = []string{
	"DependantName", "DependantCurrentIdNo", "DependantGender", "RelationShipDesc",
	"DependantBirthDate", "MarriageDate", "DependantPensionAccNo",
}

// ParseResponse extracts the pensioner record from an InquireEmass SOAP
// response. Elements are matched by local name so namespace prefixes do not
// matter. A missing or empty InquireEmassResult yields ErrNotFound.
func ParseResponse(r io.Reader) (*Pensioner, error) {
	dec := xml.NewDecoder(r)
	p := &Pensioner{Dependants: []Dependant{}}
	fields := pensionerFields(p)
	repeated := make(map[string][]string, len(dependantTags))
	for _, tag := range dependantTags {
		repeated[tag] = nil
	}

	var (
		inResult bool
		values   int
		current  string
		text     strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("kwap: parse response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "InquireEmassResult" {
				inResult = true
			}
			current = t.Name.Local
			text.Reset()
		case xml.CharData:
			if current != "" {
				text.Write(t)
			}
		case xml.EndElement:
			name := t.Name.Local
			if name == "InquireEmassResult" {
				inResult = false
			}
			if inResult && name == current {
				v := strings.TrimSpace(text.String())
				if dst, ok := fields[name]; ok && *dst == "" && v != "" {
					*dst = v
					values++
				} else if _, ok := repeated[name]; ok {
					repeated[name] = append(repeated[name], v)
					values++
				}
			}
			current = ""
		}
	}

	if values == 0 {
		return nil, ErrNotFound
	}

	at := func(tag string, i int) string {
		if vs := repeated[tag]; i < len(vs) {
			return vs[i]
		}
		return ""
	}
	for i, name := range repeated["DependantName"] {
		if name == "" {
			continue
		}
		p.Dependants = append(p.Dependants, Dependant{
			Name:             name,
			CurrentIDNo:      at("DependantCurrentIdNo", i),
			Gender:           at("DependantGender", i),
			RelationshipDesc: at("RelationShipDesc", i),
			BirthDate:        at("DependantBirthDate", i),
			MarriageDate:     at("MarriageDate", i),
			PensionAccNo:     at("DependantPensionAccNo", i),
		})
	}
	return p, nil
}
