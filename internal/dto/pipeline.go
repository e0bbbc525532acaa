package dto

import (
	"time"

	"github.com/millflow/millflow/internal/entity"
)

// AdditionalMeterResponse is one split consignment under a chalan.
type AdditionalMeterResponse struct {
	ID          int64            `json:"id"`
	Position    int              `json:"position"`
	GreighMtr   float64          `json:"greighMtr"`
	Pcs         int              `json:"pcs"`
	QualityID   *int64           `json:"qualityId,omitempty"`
	Quality     *QualityResponse `json:"quality,omitempty"`
	ProcessName string           `json:"processName,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

// MillInputResponse represents one issuance of material to a mill.
type MillInputResponse struct {
	ID          int64                      `json:"id"`
	OrderID     int64                      `json:"orderId"`
	OrderPK     int64                      `json:"orderPk"`
	MillID      int64                      `json:"millId"`
	Mill        *MillResponse              `json:"mill,omitempty"`
	MillDate    time.Time                  `json:"millDate"`
	ChalanNo    string                     `json:"chalanNo"`
	GreighMtr   float64                    `json:"greighMtr"`
	Pcs         int                        `json:"pcs"`
	QualityID   *int64                     `json:"qualityId,omitempty"`
	Quality     *QualityResponse           `json:"quality,omitempty"`
	ProcessName string                     `json:"processName,omitempty"`
	Notes       string                     `json:"notes,omitempty"`
	Meters      []*AdditionalMeterResponse `json:"meters"`
	CreatedAt   time.Time                  `json:"createdAt"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
}

// MillOutputResponse represents one receipt of finished material.
type MillOutputResponse struct {
	ID          int64            `json:"id"`
	OrderID     int64            `json:"orderId"`
	OrderPK     int64            `json:"orderPk"`
	RecdDate    time.Time        `json:"recdDate"`
	MillBillNo  string           `json:"millBillNo,omitempty"`
	FinishedMtr float64          `json:"finishedMtr"`
	MillRate    float64          `json:"millRate"`
	QualityID   *int64           `json:"qualityId,omitempty"`
	Quality     *QualityResponse `json:"quality,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// DispatchResponse represents one shipment to the customer.
type DispatchResponse struct {
	ID           int64            `json:"id"`
	OrderID      int64            `json:"orderId"`
	OrderPK      int64            `json:"orderPk"`
	DispatchDate time.Time        `json:"dispatchDate"`
	BillNo       string           `json:"billNo,omitempty"`
	FinishMtr    float64          `json:"finishMtr"`
	SaleRate     float64          `json:"saleRate"`
	TotalValue   float64          `json:"totalValue"`
	QualityID    *int64           `json:"qualityId,omitempty"`
	Quality      *QualityResponse `json:"quality,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// LabResponse represents a sample testing record.
type LabResponse struct {
	ID            int64              `json:"id"`
	OrderPK       int64              `json:"orderPk"`
	OrderItemID   int64              `json:"orderItemId"`
	LabSendDate   time.Time          `json:"labSendDate"`
	LabSendNumber string             `json:"labSendNumber,omitempty"`
	SendData      entity.LabSendData `json:"sendData"`
	Status        string             `json:"status"`
	Remarks       string             `json:"remarks,omitempty"`
	SoftDeleted   bool               `json:"softDeleted"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// FromMillInput maps a mill input entity.
func FromMillInput(mi *entity.MillInput) *MillInputResponse {
	if mi == nil {
		return nil
	}
	meters := make([]*AdditionalMeterResponse, 0, len(mi.AdditionalMeters))
	for _, m := range mi.AdditionalMeters {
		meters = append(meters, &AdditionalMeterResponse{
			ID:          m.ID,
			Position:    m.Position,
			GreighMtr:   m.GreighMtr,
			Pcs:         m.Pcs,
			QualityID:   m.QualityID,
			Quality:     FromQuality(m.Quality),
			ProcessName: m.ProcessName,
			Notes:       m.Notes,
		})
	}
	return &MillInputResponse{
		ID:          mi.ID,
		OrderID:     mi.OrderID,
		OrderPK:     mi.OrderPK,
		MillID:      mi.MillID,
		Mill:        FromMill(mi.Mill),
		MillDate:    mi.MillDate,
		ChalanNo:    mi.ChalanNo,
		GreighMtr:   mi.GreighMtr,
		Pcs:         mi.Pcs,
		QualityID:   mi.QualityID,
		Quality:     FromQuality(mi.Quality),
		ProcessName: mi.ProcessName,
		Notes:       mi.Notes,
		Meters:      meters,
		CreatedAt:   mi.CreatedAt,
		UpdatedAt:   mi.UpdatedAt,
	}
}

// FromMillInputs maps a slice of mill inputs.
func FromMillInputs(inputs []*entity.MillInput) []*MillInputResponse {
	out := make([]*MillInputResponse, 0, len(inputs))
	for _, mi := range inputs {
		out = append(out, FromMillInput(mi))
	}
	return out
}

// FromMillOutput maps a mill output entity.
func FromMillOutput(mo *entity.MillOutput) *MillOutputResponse {
	if mo == nil {
		return nil
	}
	return &MillOutputResponse{
		ID:          mo.ID,
		OrderID:     mo.OrderID,
		OrderPK:     mo.OrderPK,
		RecdDate:    mo.RecdDate,
		MillBillNo:  mo.MillBillNo,
		FinishedMtr: mo.FinishedMtr,
		MillRate:    mo.MillRate,
		QualityID:   mo.QualityID,
		Quality:     FromQuality(mo.Quality),
		CreatedAt:   mo.CreatedAt,
		UpdatedAt:   mo.UpdatedAt,
	}
}

// FromMillOutputs maps a slice of mill outputs.
func FromMillOutputs(outputs []*entity.MillOutput) []*MillOutputResponse {
	out := make([]*MillOutputResponse, 0, len(outputs))
	for _, mo := range outputs {
		out = append(out, FromMillOutput(mo))
	}
	return out
}

// FromDispatch maps a dispatch entity.
func FromDispatch(d *entity.Dispatch) *DispatchResponse {
	if d == nil {
		return nil
	}
	return &DispatchResponse{
		ID:           d.ID,
		OrderID:      d.OrderID,
		OrderPK:      d.OrderPK,
		DispatchDate: d.DispatchDate,
		BillNo:       d.BillNo,
		FinishMtr:    d.FinishMtr,
		SaleRate:     d.SaleRate,
		TotalValue:   d.TotalValue,
		QualityID:    d.QualityID,
		Quality:      FromQuality(d.Quality),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// FromDispatches maps a slice of dispatches.
func FromDispatches(dispatches []*entity.Dispatch) []*DispatchResponse {
	out := make([]*DispatchResponse, 0, len(dispatches))
	for _, d := range dispatches {
		out = append(out, FromDispatch(d))
	}
	return out
}

// FromLab maps a lab entity.
func FromLab(l *entity.Lab) *LabResponse {
	if l == nil {
		return nil
	}
	return &LabResponse{
		ID:            l.ID,
		OrderPK:       l.OrderPK,
		OrderItemID:   l.OrderItemID,
		LabSendDate:   l.LabSendDate,
		LabSendNumber: l.LabSendNumber,
		SendData:      l.SendData,
		Status:        l.Status,
		Remarks:       l.Remarks,
		SoftDeleted:   l.SoftDeleted,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

// FromLabs maps a slice of labs.
func FromLabs(labs []*entity.Lab) []*LabResponse {
	out := make([]*LabResponse, 0, len(labs))
	for _, l := range labs {
		out = append(out, FromLab(l))
	}
	return out
}
