package scanning

// extractionPrompt is shared by every extraction provider so they all answer in the same schema.
const extractionPrompt = `You are an OCR system for Indian manufacturing and trading businesses. Read the photo of a
business document (handwritten "kata parchi", weighbridge slip, bill, challan or printed invoice) and
extract structured data.

RULES:
1. Handle Hindi, English and mixed Hindi-English text. Translate item names to English.
2. Recognize unit abbreviations: pcs, kg, dz (dozen), ctn (carton), mtr (meter), ltr (liter), qtl (quintal).
3. Numbers may be handwritten. Interpret them carefully and lower the confidence when unsure.
4. Ignore crossed-out lines when reading items, but list them under crossed_out_items.
5. If the photo holds several documents, return one entry per document in "documents".
6. Every core field is an object {"value": ..., "confidence": "high" | "medium" | "low"}.
7. Return ONLY valid JSON, no markdown, no explanation.

OUTPUT SCHEMA:
{
  "documents": [
    {
      "document_type": "handwritten_kata | weighbridge_slip | tax_invoice | delivery_challan | purchase_order | receipt | quotation | other",
      "industry": "string",
      "summary": "one line describing the document",
      "core": {
        "party_name": {"value": "string", "confidence": "high"},
        "date": {"value": "DD/MM/YYYY or null", "confidence": "high"},
        "time": {"value": "HH:MM or null", "confidence": "high"},
        "items": [
          {
            "name": {"value": "string", "confidence": "high"},
            "quantity": {"value": 0, "confidence": "high"},
            "unit": {"value": "pcs", "confidence": "high"},
            "rate": {"value": 0, "confidence": "high"},
            "amount": {"value": 0, "confidence": "high"}
          }
        ],
        "total_amount": {"value": 0, "confidence": "high"}
      },
      "additional_fields": [
        {"key": "vehicle_number", "label": "Vehicle No.", "value": "string", "confidence": "high"}
      ],
      "crossed_out_items": [],
      "corrections": []
    }
  ],
  "multi_document": {"count": 1, "relationship": "single | same_transaction | related | unrelated", "link_note": "string or null"}
}

Use 0 for a rate or amount that is not written. If the image is not a business document or cannot be
read at all, return {"error": "unreadable", "suggestion": "a short hint for the user on how to retake the photo"}.

EXAMPLES OF HANDWRITTEN TEXT YOU MAY SEE:
- "Sharma ji ko 100 kursi bhejo @ 500" means Sharma, 100 pcs chairs at 500 each
- "50 kg sariya aayi godown mein" means 50 kg steel bars received
- "LED bulb 200 pcs @ 150/pc" means 200 LED bulbs at 150 each
- "Ravi Transport - 25 carton, rate 1200" means Ravi Transport, 25 cartons at 1200 each`

const systemInstruction = "You are an expert at reading Indian business documents and extracting accurate structured data from photos."
