package webdav

import "encoding/xml"

// The following mirror the exact <d:...> shapes described in §4.3.1 and
// §6: a multistatus response is either a full PROPFIND body (propstat per
// response) or a partial-failure body (status/responsedescription per
// response), so propstat and status/description are both optional here.

type multistatus struct {
	XMLName   xml.Name   `xml:"d:multistatus"`
	XmlnsD    string     `xml:"xmlns:d,attr"`
	Responses []response `xml:"d:response"`
}

type response struct {
	Href                string    `xml:"d:href"`
	Propstat            *propstat `xml:"d:propstat,omitempty"`
	Status              string    `xml:"d:status,omitempty"`
	ResponseDescription string    `xml:"d:responsedescription,omitempty"`
}

type propstat struct {
	Prop   prop   `xml:"d:prop"`
	Status string `xml:"d:status"`
}

type prop struct {
	DisplayName      string        `xml:"d:displayname"`
	GetContentLength string        `xml:"d:getcontentlength,omitempty"`
	GetLastModified  string        `xml:"d:getlastmodified,omitempty"`
	ResourceType     *resourceType `xml:"d:resourcetype"`
	GetContentType   string        `xml:"d:getcontenttype,omitempty"`
}

type resourceType struct {
	Collection *struct{} `xml:"d:collection,omitempty"`
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n"

func marshalMultistatus(ms *multistatus) ([]byte, error) {
	body, err := xml.MarshalIndent(ms, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xmlHeader)+len(body))
	out = append(out, xmlHeader...)
	out = append(out, body...)
	return out, nil
}
