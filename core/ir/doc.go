// Package ir provides the normalized model shared by every stage of the
// apparatus engine.
//
// # Core Types
//
// The model is organized leaf-first:
//
//   - Witness: a manuscript, version, father or edition with its canonical siglum
//   - Anchor: a position in the base text (verse, optionally narrowed to a word span)
//   - Reading: one attested form at a unit, with its supporting witnesses
//   - VariationUnit: the readings found at one anchor
//   - ApparatusEntry: a collated unit ready for serialization, possibly nesting others
//   - Document: the assembled tree of book, chapter and verse divisions
//
// # Anchors
//
// Anchors accept OSIS-style notations ("Acts.1.3", "Acts.1.3/2", "Acts.1.3/2-8")
// and INTF index notations ("B05K1V3", "B05K1V3U2-8"). Both are parsed with
// participle grammars and normalized into one Anchor value with a total order.
//
// # Example
//
//	a, err := ir.ParseAnchor("Acts.1.3/2-8")
//	if err != nil {
//	    return err
//	}
//	unit := &ir.VariationUnit{Anchor: a}
//	unit.Readings = append(unit.Readings, &ir.Reading{
//	    Label:     "a",
//	    Text:      "καὶ",
//	    Witnesses: []ir.Attestation{{Siglum: "01"}, {Siglum: "03"}},
//	})
package ir
