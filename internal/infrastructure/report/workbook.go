package report

import (
	"fmt"
	"io"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/settlement"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	sheetPackages   = "Paquetes"
	sheetCategories = "Categorias"
	sheetClients    = "Clientes"

	estimatedMark = " (estimado)"
)

// ExpeditionWorkbook renders an expedition summary as an .xlsx workbook
type ExpeditionWorkbook struct {
	logger *zap.Logger
}

// NewExpeditionWorkbook creates a new workbook renderer
func NewExpeditionWorkbook(logger *zap.Logger) *ExpeditionWorkbook {
	return &ExpeditionWorkbook{logger: logger}
}

// Write renders the summary and writes the workbook to w
func (wb *ExpeditionWorkbook) Write(exp *entity.Expedition, summary *settlement.Summary, clients map[string]*entity.Client, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetPackages); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := wb.writePackages(f, exp, summary, clients); err != nil {
		return err
	}
	if err := wb.writeBuckets(f, sheetCategories, "Categoria", summary.ByCategory); err != nil {
		return err
	}
	if err := wb.writeBuckets(f, sheetClients, "Cliente", summary.ByClient); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	wb.logger.Info("Expedition workbook written",
		zap.String("expedition_id", exp.ID),
		zap.Int("packages", summary.PackageCount))
	return nil
}

func (wb *ExpeditionWorkbook) writePackages(f *excelize.File, exp *entity.Expedition, summary *settlement.Summary, clients map[string]*entity.Client) error {
	header := []interface{}{"Numero", "Cliente", "Bruto (g)", "Fino (g)", "Precio/g", "Base", "Descuento", "Base cliente", "IGI", "Total factura", "Cierre Jofisa", "Factura Jofisa", "Margen", "Verificado"}
	if err := f.SetSheetRow(sheetPackages, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := 2
	for _, ps := range summary.Packages {
		p, r := ps.Package, ps.Result
		client := p.ClientID
		if c, ok := clients[p.ClientID]; ok {
			client = c.Name
		}

		values := []interface{}{
			p.Number,
			client,
			money(r.WeightGross),
			money(r.WeightFine),
			priceCell(r),
			money(r.Base),
			money(r.Discount),
			money(r.ClientBase),
			money(r.Tax),
			totalCell(r),
			money(r.CounterpartyClose),
			money(r.CounterpartyInvoice),
			money(r.Margin),
			verificationCell(p),
		}
		if !r.Priced {
			for i := 4; i < len(values)-1; i++ {
				values[i] = ""
			}
		}

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetPackages, cell, &values); err != nil {
			return fmt.Errorf("failed to write package %s: %w", p.ID, err)
		}
		row++
	}

	row++
	totals := [][]interface{}{
		{"Expedicion", exp.Name},
		{"Paquetes", summary.PackageCount},
		{"Bruto total (g)", money(summary.WeightGross)},
		{"Fino total (g)", money(summary.WeightFine)},
		{"Total facturas", withMark(money(summary.InvoiceTotal), summary.HasEstimates())},
		{"Confirmado", money(summary.ConfirmedInvoiceTotal)},
		{"Estimado", money(summary.EstimatedInvoiceTotal)},
		{"Total Jofisa", money(summary.CounterpartyTotal)},
		{"Margen total", money(summary.MarginTotal)},
	}
	if summary.InsuranceRatio != nil {
		totals = append(totals, []interface{}{"Ratio seguro", summary.InsuranceRatio.StringFixed(4)})
	}
	for _, t := range totals {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetPackages, cell, &t); err != nil {
			return fmt.Errorf("failed to write totals: %w", err)
		}
		row++
	}
	return nil
}

func (wb *ExpeditionWorkbook) writeBuckets(f *excelize.File, sheet, label string, buckets []settlement.Bucket) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	header := []interface{}{label, "Paquetes", "Bruto (g)", "Fino (g)", "Total factura", "Precio medio/g"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, b := range buckets {
		values := []interface{}{b.Label, b.PackageCount, money(b.WeightGross), money(b.WeightFine), money(b.InvoiceTotal), money(b.AvgPricePerGram())}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row: %w", sheet, err)
		}
	}
	return nil
}

func money(d decimal.Decimal) float64 {
	v, _ := d.Round(2).Float64()
	return v
}

func withMark(v float64, estimated bool) interface{} {
	if !estimated {
		return v
	}
	return fmt.Sprintf("%.2f%s", v, estimatedMark)
}

func priceCell(r settlement.Result) interface{} {
	return withMark(money(r.EffectivePrice), r.IsEstimated)
}

func totalCell(r settlement.Result) interface{} {
	return withMark(money(r.InvoiceTotal), r.IsEstimated)
}

func verificationCell(p *entity.Package) string {
	switch {
	case p.Verification == nil:
		return ""
	case p.Verification.Validated:
		return "validado"
	case p.Verification.Unpriced:
		return "pendiente sin precio"
	default:
		return "pendiente " + p.Verification.Delta.StringFixed(2)
	}
}
