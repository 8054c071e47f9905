package construct

// Datatypes used for value canonicalisation.
const (
	XSD        = "http://www.w3.org/2001/XMLSchema#"
	XSDString  = XSD + "string"
	XSDAnyURI  = XSD + "anyURI"
	XSDInteger = XSD + "integer"
	XSDInt     = XSD + "int"
	XSDLong    = XSD + "long"
	XSDDecimal = XSD + "decimal"
	XSDBoolean = XSD + "boolean"
)

// DefaultNameType is the subject identifier of the TMDM default topic name type.
const DefaultNameType = "http://psi.topicmaps.org/iso13250/model/topic-name"
